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

package audio

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-scope/internal/oscillator"
	"github.com/loqalabs/loqa-scope/internal/window"
)

// StreamConfig describes the sine stream to open
type StreamConfig struct {
	SampleRate float64 // 0 = device default
	Channels   int
	BlockSize  int // frames per callback
	Speed      float64
}

// StreamStats is a point-in-time view of the running stream
type StreamStats struct {
	Blocks        uint64
	DroppedBlocks uint64
	DeviceErrors  uint64
	Speed         float64
}

// SineStream is the live audio output connection. It owns the oscillator,
// its speed control and the sample window that the callback feeds.
type SineStream struct {
	mu      sync.Mutex
	stream  StreamInterface
	device  DeviceInfo
	config  StreamConfig
	speed   *oscillator.SpeedControl
	osc     *oscillator.Oscillator
	window  *window.SampleWindow
	running atomic.Bool
	closed  bool

	deviceErrors atomic.Uint64
}

// OpenSineStream resolves the output device and opens a stream whose callback
// runs the oscillator. The backend must already be initialized.
func OpenSineStream(backend AudioBackend, cfg StreamConfig) (*SineStream, error) {
	device, err := backend.DefaultOutputDevice()
	if err != nil {
		return nil, err
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = device.DefaultSampleRate
	}
	if cfg.Channels <= 0 || cfg.Channels > device.MaxOutputChannels {
		return nil, fmt.Errorf("%w: %d requested, %q supports %d",
			ErrUnsupportedChannels, cfg.Channels, device.Name, device.MaxOutputChannels)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", cfg.BlockSize)
	}

	speed := oscillator.NewSpeedControl(cfg.Speed)
	s := &SineStream{
		device: device,
		config: cfg,
		speed:  speed,
		osc:    oscillator.NewOscillator(speed),
		window: window.New(cfg.BlockSize * cfg.Channels),
	}

	stream, err := backend.CreateOutputStream(StreamParams{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		BufferSize:    cfg.BlockSize,
		Callback:      s.fill,
		ErrorCallback: s.deviceError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sine stream: %w", err)
	}
	s.stream = stream

	log.Printf("🔊 Scope: Opened %q at %.0f Hz, %d channel(s), %d frames per block",
		device.Name, cfg.SampleRate, cfg.Channels, cfg.BlockSize)
	return s, nil
}

// fill is the real-time callback
func (s *SineStream) fill(out []float32) {
	if !s.running.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}
	s.osc.Advance(out, s.window)
}

func (s *SineStream) deviceError(err error) {
	s.deviceErrors.Add(1)
	log.Printf("⚠️ Scope: Audio device error: %v", err)
}

// Start begins playback
func (s *SineStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.running.Load() {
		return nil
	}

	s.running.Store(true)
	if err := s.stream.Start(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to start sine stream: %w", err)
	}
	log.Println("▶️ Scope: Playback started")
	return nil
}

// Stop halts playback. When it returns no callback is running and none will
// reach the oscillator until Start is called again.
func (s *SineStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop sine stream: %w", err)
	}
	log.Println("⏹️ Scope: Playback stopped")
	return nil
}

// Close stops playback and releases the backend stream. Safe to call twice.
func (s *SineStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.running.Store(false)

	if err := s.stream.Stop(); err != nil {
		log.Printf("⚠️ Scope: Failed to stop stream during close: %v", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close sine stream: %w", err)
	}
	log.Println("🔌 Scope: Stream closed")
	return nil
}

// IsActive reports whether the stream is playing
func (s *SineStream) IsActive() bool {
	return s.running.Load() && s.stream.IsActive()
}

// Snapshot returns a copy of the most recent block (empty before the first one)
func (s *SineStream) Snapshot() []float32 {
	return s.window.Snapshot()
}

// SnapshotInto copies the most recent block into dst; see window.SampleWindow.SnapshotInto
func (s *SineStream) SnapshotInto(dst []float32) ([]float32, uint64) {
	return s.window.SnapshotInto(dst)
}

// SetSpeed changes the phase increment from any goroutine
func (s *SineStream) SetSpeed(newSpeed float64) {
	s.speed.Set(newSpeed)
}

// Speed returns the current phase increment
func (s *SineStream) Speed() float64 {
	return s.speed.Load()
}

// Window returns the shared sample window
func (s *SineStream) Window() *window.SampleWindow {
	return s.window
}

// Oscillator returns the generator driven by the callback
func (s *SineStream) Oscillator() *oscillator.Oscillator {
	return s.osc
}

// Config returns the resolved stream configuration
func (s *SineStream) Config() StreamConfig {
	return s.config
}

// Device returns the device the stream was opened on
func (s *SineStream) Device() DeviceInfo {
	return s.device
}

// BlockLen returns the number of samples per block (frames × channels)
func (s *SineStream) BlockLen() int {
	return s.window.Capacity()
}

// Stats returns counters for the running stream
func (s *SineStream) Stats() StreamStats {
	return StreamStats{
		Blocks:        s.osc.Blocks(),
		DroppedBlocks: s.osc.DroppedBlocks(),
		DeviceErrors:  s.deviceErrors.Load(),
		Speed:         s.speed.Load(),
	}
}
