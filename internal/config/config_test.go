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
	"bytes"
	"errors"
	"flag"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-scope/internal/audio"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("loqa-scope", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	return fs
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, "portaudio", cfg.Backend)
	assert.Equal(t, 0.0, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 1024, cfg.BlockSize)
	assert.Equal(t, 0.02, cfg.Speed)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 5*time.Second, cfg.StatusInterval)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "loqa-scope-001", cfg.ID)
	assert.NoError(t, cfg.Validate())
}

func TestParse_Flags(t *testing.T) {
	cfg, err := Parse(newFlagSet(), []string{
		"-backend", " OTO ",
		"-sample-rate", "48000",
		"-channels", "1",
		"-block-size", "256",
		"-speed", "-0.05",
		"-headless",
		"-status-interval", "250ms",
		"-nats", "nats://localhost:4222",
		"-id", "bench-scope",
	})
	require.NoError(t, err)

	assert.Equal(t, audio.BackendOto, cfg.Backend)
	assert.Equal(t, 48000.0, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 256, cfg.BlockSize)
	assert.Equal(t, -0.05, cfg.Speed, "negative speeds sweep backwards and are allowed")
	assert.True(t, cfg.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.StatusInterval)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "bench-scope", cfg.ID)
	assert.NoError(t, cfg.Validate())

	sc := cfg.StreamConfig()
	assert.Equal(t, audio.StreamConfig{SampleRate: 48000, Channels: 1, BlockSize: 256, Speed: -0.05}, sc)
}

func TestParse_BadFlag(t *testing.T) {
	_, err := Parse(newFlagSet(), []string{"-block-size", "many"})
	assert.Error(t, err)

	_, err = Parse(newFlagSet(), []string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse(newFlagSet(), nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown_backend", func(c *Config) { c.Backend = "alsa" }, "unknown audio backend"},
		{"negative_sample_rate", func(c *Config) { c.SampleRate = -1 }, "invalid sample rate"},
		{"nan_sample_rate", func(c *Config) { c.SampleRate = math.NaN() }, "invalid sample rate"},
		{"zero_channels", func(c *Config) { c.Channels = 0 }, "invalid channel count"},
		{"zero_block_size", func(c *Config) { c.BlockSize = 0 }, "invalid block size"},
		{"negative_block_size", func(c *Config) { c.BlockSize = -512 }, "invalid block size"},
		{"nan_speed", func(c *Config) { c.Speed = math.NaN() }, "invalid speed"},
		{"infinite_speed", func(c *Config) { c.Speed = math.Inf(1) }, "invalid speed"},
		{"zero_status_interval", func(c *Config) { c.StatusInterval = 0 }, "invalid status interval"},
		{"nats_without_id", func(c *Config) { c.NATSURL = "nats://localhost:4222"; c.ID = " " }, "id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("unknown_backend_is_sentinel", func(t *testing.T) {
		cfg := valid()
		cfg.Backend = "jack"
		assert.True(t, errors.Is(cfg.Validate(), audio.ErrUnknownBackend))
	})

	t.Run("zero_speed_is_valid", func(t *testing.T) {
		cfg := valid()
		cfg.Speed = 0
		assert.NoError(t, cfg.Validate())
	})
}
