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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoOutputDevice is returned when there is no usable audio sink
	ErrNoOutputDevice = errors.New("there's no available output device")

	// ErrNotInitialized is returned when a backend is used before Initialize
	ErrNotInitialized = errors.New("audio backend not initialized")

	// ErrStreamClosed is returned when operating on a closed stream
	ErrStreamClosed = errors.New("stream is closed")

	// ErrUnsupportedChannels is returned when the device cannot provide the requested channel count
	ErrUnsupportedChannels = errors.New("unsupported channel count")

	// ErrUnknownBackend is returned by NewBackend for names it does not know
	ErrUnknownBackend = errors.New("unknown audio backend")
)

// AudioBackend provides an abstraction layer for audio operations
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// DefaultOutputDevice describes the device output streams will open on.
	// Returns ErrNoOutputDevice when there is none.
	DefaultOutputDevice() (DeviceInfo, error)

	// CreateOutputStream creates a callback-driven output stream
	CreateOutputStream(params StreamParams) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream. Returns after any in-flight callback has finished.
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// IsActive returns true if the stream is currently active
	IsActive() bool
}

// StreamCallback fills one block of interleaved output samples.
// It runs on the real-time audio path.
type StreamCallback func(output []float32)

// ErrorCallback receives device-level failures. Fire-and-forget.
type ErrorCallback func(err error)

// StreamParams holds parameters for stream creation
type StreamParams struct {
	SampleRate    float64
	Channels      int
	BufferSize    int // frames per callback
	Callback      StreamCallback
	ErrorCallback ErrorCallback
}

// Validate checks that the parameters can open a stream
func (p StreamParams) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %f", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("%w: %d", ErrUnsupportedChannels, p.Channels)
	}
	if p.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size %d", p.BufferSize)
	}
	if p.Callback == nil {
		return fmt.Errorf("stream callback is required")
	}
	return nil
}

// DeviceInfo describes an output device
type DeviceInfo struct {
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Backend names accepted by NewBackend
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
)

// NewBackend returns the backend registered under name
func NewBackend(name string) (AudioBackend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendPortAudio:
		return NewPortAudioBackend(), nil
	case BackendOto:
		return NewOtoBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

func reportError(cb ErrorCallback, err error) {
	if cb != nil && err != nil {
		cb(err)
	}
}
