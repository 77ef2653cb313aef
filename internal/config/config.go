/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"flag"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scope/internal/audio"
)

// Defaults used when a flag is not given
const (
	DefaultBackend        = audio.BackendPortAudio
	DefaultChannels       = 2
	DefaultBlockSize      = 1024
	DefaultSpeed          = 0.02
	DefaultStatusInterval = 5 * time.Second
	DefaultID             = "loqa-scope-001"
)

// Config holds everything the scope needs at startup
type Config struct {
	Backend        string
	SampleRate     float64 // 0 = device default
	Channels       int
	BlockSize      int
	Speed          float64
	Headless       bool
	StatusInterval time.Duration
	NATSURL        string // empty disables remote control
	ID             string
}

// Parse registers the scope flags on fs and parses args into a Config.
// The result is not validated.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Backend, "backend", DefaultBackend, "Audio backend (portaudio or oto)")
	fs.Float64Var(&cfg.SampleRate, "sample-rate", 0, "Output sample rate in Hz (0 = device default)")
	fs.IntVar(&cfg.Channels, "channels", DefaultChannels, "Output channel count")
	fs.IntVar(&cfg.BlockSize, "block-size", DefaultBlockSize, "Frames per audio block")
	fs.Float64Var(&cfg.Speed, "speed", DefaultSpeed, "Initial phase increment in radians per sample")
	fs.BoolVar(&cfg.Headless, "headless", false, "Run without the visualizer window")
	fs.DurationVar(&cfg.StatusInterval, "status-interval", DefaultStatusInterval, "Status log and publish interval")
	fs.StringVar(&cfg.NATSURL, "nats", "", "NATS server URL for remote speed control (empty = disabled)")
	fs.StringVar(&cfg.ID, "id", DefaultID, "Scope identifier")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch c.Backend {
	case audio.BackendPortAudio, audio.BackendOto:
	default:
		return fmt.Errorf("%w: %q", audio.ErrUnknownBackend, c.Backend)
	}

	if c.SampleRate < 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("invalid sample rate %v", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid block size %d", c.BlockSize)
	}
	if math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("invalid speed %v", c.Speed)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("invalid status interval %v", c.StatusInterval)
	}
	if c.NATSURL != "" && strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("an id is required when NATS is enabled")
	}
	return nil
}

// StreamConfig returns the audio stream settings
func (c *Config) StreamConfig() audio.StreamConfig {
	return audio.StreamConfig{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		BlockSize:  c.BlockSize,
		Speed:      c.Speed,
	}
}
