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
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// underflowPollInterval is how often underflows counted on the audio thread
// are handed to the error callback
const underflowPollInterval = 500 * time.Millisecond

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// DefaultOutputDevice returns the host's default output device
func (p *PortAudioBackend) DefaultOutputDevice() (DeviceInfo, error) {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return DeviceInfo{}, ErrNotInitialized
	}

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil || dev == nil || dev.MaxOutputChannels <= 0 {
		if err == nil {
			err = fmt.Errorf("device reports no output channels")
		}
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
	}

	return DeviceInfo{
		Name:              dev.Name,
		MaxOutputChannels: dev.MaxOutputChannels,
		DefaultSampleRate: dev.DefaultSampleRate,
	}, nil
}

// CreateOutputStream opens a callback-driven stream on the default output device
func (p *PortAudioBackend) CreateOutputStream(params StreamParams) (StreamInterface, error) {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return nil, ErrNotInitialized
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ps := &PortAudioStream{
		errorCallback: params.ErrorCallback,
	}
	callback := params.Callback

	stream, err := portaudio.OpenDefaultStream(
		0,               // input channels (none for output stream)
		params.Channels, // output channels
		params.SampleRate,
		params.BufferSize,
		func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			if flags&portaudio.OutputUnderflow != 0 {
				ps.underflows.Add(1)
			}
			callback(out)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	ps.stream = stream
	return ps, nil
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	mu            sync.Mutex
	stream        *portaudio.Stream
	active        atomic.Bool
	closed        bool
	underflows    atomic.Uint64
	errorCallback ErrorCallback
	stopWatch     chan struct{}
	watchDone     chan struct{}
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return ErrStreamClosed
	}
	if p.active.Load() {
		return nil
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	p.active.Store(true)

	p.stopWatch = make(chan struct{})
	p.watchDone = make(chan struct{})
	go p.watchUnderflows(p.stopWatch, p.watchDone)
	return nil
}

// Stop stops the audio stream. PortAudio waits for the running callback to return.
func (p *PortAudioStream) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return ErrStreamClosed
	}
	if !p.active.Load() {
		return nil
	}

	err := p.stream.Stop()
	p.active.Store(false)

	close(p.stopWatch)
	<-p.watchDone

	if err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return nil
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	if err := p.Stop(); err != nil && !errors.Is(err, ErrStreamClosed) {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return nil
	}
	p.closed = true
	return p.stream.Close()
}

// IsActive returns true if the stream is active
func (p *PortAudioStream) IsActive() bool {
	return p.active.Load()
}

// Underflows returns how many callbacks reported an output underflow
func (p *PortAudioStream) Underflows() uint64 {
	return p.underflows.Load()
}

// watchUnderflows reports underflows off the audio thread so the callback never logs
func (p *PortAudioStream) watchUnderflows(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(underflowPollInterval)
	defer ticker.Stop()

	reported := p.underflows.Load()
	flush := func() {
		if n := p.underflows.Load(); n > reported {
			reportError(p.errorCallback, fmt.Errorf("output underflow: %d block(s) late", n-reported))
			reported = n
		}
	}

	for {
		select {
		case <-stop:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}
