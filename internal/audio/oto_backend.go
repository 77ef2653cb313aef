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
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoDefaultSampleRate is reported as the device default since oto does not enumerate devices
const otoDefaultSampleRate = 48000

// OtoBackend implements AudioBackend on top of oto.
// oto allows a single context per process, so the first stream fixes the
// sample rate and channel count for every later stream.
type OtoBackend struct {
	mu          sync.Mutex
	initialized bool
	ctx         *oto.Context
	sampleRate  int
	channels    int
	streams     []*OtoStream
}

// NewOtoBackend creates a new oto backend
func NewOtoBackend() *OtoBackend {
	return &OtoBackend{}
}

// Initialize marks the backend ready. The oto context itself is created with the first stream.
func (o *OtoBackend) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initialized = true
	return nil
}

// Terminate closes every stream created by this backend
func (o *OtoBackend) Terminate() error {
	o.mu.Lock()
	streams := o.streams
	o.streams = nil
	o.initialized = false
	o.mu.Unlock()

	var firstErr error
	for _, s := range streams {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DefaultOutputDevice describes the system default sink used by oto
func (o *OtoBackend) DefaultOutputDevice() (DeviceInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return DeviceInfo{}, ErrNotInitialized
	}
	if o.ctx != nil {
		if err := o.ctx.Err(); err != nil {
			return DeviceInfo{}, fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
		}
	}

	return DeviceInfo{
		Name:              "system default (oto)",
		MaxOutputChannels: 2,
		DefaultSampleRate: otoDefaultSampleRate,
	}, nil
}

// CreateOutputStream creates a player that pulls fixed-size blocks from params.Callback
func (o *OtoBackend) CreateOutputStream(params StreamParams) (StreamInterface, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return nil, ErrNotInitialized
	}

	sampleRate := int(params.SampleRate)
	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: params.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(float64(params.BufferSize) / params.SampleRate * float64(time.Second)),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
		}
		<-ready

		o.ctx = ctx
		o.sampleRate = sampleRate
		o.channels = params.Channels
	} else if o.sampleRate != sampleRate || o.channels != params.Channels {
		return nil, fmt.Errorf("oto context already running at %d Hz with %d channels", o.sampleRate, o.channels)
	}

	reader := newBlockReader(params.Channels*params.BufferSize, params.Callback)
	stream := &OtoStream{
		player:        o.ctx.NewPlayer(reader),
		reader:        reader,
		errorCallback: params.ErrorCallback,
	}
	o.streams = append(o.streams, stream)
	return stream, nil
}

// OtoStream implements StreamInterface with an oto player
type OtoStream struct {
	mu            sync.Mutex
	player        *oto.Player
	reader        *blockReader
	active        bool
	closed        bool
	errorCallback ErrorCallback
}

// Start begins pulling blocks from the callback
func (s *OtoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.active {
		return nil
	}

	s.reader.setActive(true)
	s.player.Play()
	s.active = true
	return nil
}

// Stop pauses the player. Once the reader is inactive the callback is not invoked again.
func (s *OtoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if !s.active {
		return nil
	}

	s.reader.setActive(false)
	s.player.Pause()
	s.active = false

	if err := s.player.Err(); err != nil {
		reportError(s.errorCallback, fmt.Errorf("oto player: %w", err))
	}
	return nil
}

// Close stops and releases the player
func (s *OtoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.reader.setActive(false)
	s.active = false
	s.closed = true
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}

// IsActive returns true while the player is pulling blocks
func (s *OtoStream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// blockReader adapts oto's pull-based io.Reader to whole-block callbacks.
// oto asks for arbitrary byte counts; the callback only ever sees full blocks.
type blockReader struct {
	mu       sync.Mutex
	active   bool
	callback StreamCallback
	block    []float32
	pending  []byte // float32LE encoding of block
	offset   int    // next unread byte of pending
}

func newBlockReader(samples int, callback StreamCallback) *blockReader {
	pending := make([]byte, samples*4)
	return &blockReader{
		callback: callback,
		block:    make([]float32, samples),
		pending:  pending,
		offset:   len(pending),
	}
}

func (r *blockReader) setActive(active bool) {
	// Taking the lock waits for an in-flight callback.
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

// Read implements io.Reader for oto.Player
func (r *blockReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) {
		if r.offset == len(r.pending) {
			r.refill()
		}
		c := copy(p[n:], r.pending[r.offset:])
		n += c
		r.offset += c
	}
	return n, nil
}

func (r *blockReader) refill() {
	if r.active {
		r.callback(r.block)
	} else {
		for i := range r.block {
			r.block[i] = 0
		}
	}
	for i, v := range r.block {
		binary.LittleEndian.PutUint32(r.pending[i*4:], math.Float32bits(v))
	}
	r.offset = 0
}
