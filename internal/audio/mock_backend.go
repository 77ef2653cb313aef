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
	"sync"
	"time"
)

// maxRecordedBlocks bounds the playback history kept by the mock
const maxRecordedBlocks = 1024

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createStreamError  error
	noOutputDevice     bool
	device             DeviceInfo
	simulateRealTiming bool
	playbackAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:            make(map[string]*MockStream),
		simulateRealTiming: true,
		playbackAudioData:  make([][]float32, 0),
		device: DeviceInfo{
			Name:              "mock output",
			MaxOutputChannels: 2,
			DefaultSampleRate: 44100,
		},
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetNoOutputDevice makes DefaultOutputDevice report ErrNoOutputDevice
func (m *MockAudioBackend) SetNoOutputDevice(missing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noOutputDevice = missing
}

// SetDevice replaces the device reported by DefaultOutputDevice
func (m *MockAudioBackend) SetDevice(device DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = device
}

// SetSimulateRealTiming controls whether started streams invoke their callback on a ticker
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// GetPlaybackAudioData returns the most recent blocks that were "played back"
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// StreamCount returns the number of open streams
func (m *MockAudioBackend) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}

	var streams []*MockStream
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	m.mu.Unlock()

	// Streams remove themselves from the backend on Close
	for _, stream := range streams {
		_ = stream.Close() // Ignore errors during cleanup
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// DefaultOutputDevice returns the configured mock device
func (m *MockAudioBackend) DefaultOutputDevice() (DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return DeviceInfo{}, ErrNotInitialized
	}
	if m.noOutputDevice {
		return DeviceInfo{}, ErrNoOutputDevice
	}
	return m.device, nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(params StreamParams) (StreamInterface, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		params:             params,
		buffer:             make([]float32, params.BufferSize*params.Channels),
		simulateRealTiming: m.simulateRealTiming,
	}

	m.streams[streamID] = stream
	return stream, nil
}

func (m *MockAudioBackend) record(block []float32) {
	dataCopy := make([]float32, len(block))
	copy(dataCopy, block)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackAudioData = append(m.playbackAudioData, dataCopy)
	if excess := len(m.playbackAudioData) - maxRecordedBlocks; excess > 0 {
		m.playbackAudioData = m.playbackAudioData[excess:]
	}
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	callbackMu         sync.Mutex // serializes callback invocations
	id                 string
	backend            *MockAudioBackend
	params             StreamParams
	buffer             []float32
	isOpen             bool
	isClosed           bool
	isActive           bool
	simulateRealTiming bool
	stopChannel        chan struct{}
	wg                 sync.WaitGroup
	callbacks          int
	startError         error
	stopError          error
	closeError         error
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetStopError configures the stream to return an error on Stop()
func (m *MockStream) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopError = err
}

// SetCloseError configures the stream to return an error on Close()
func (m *MockStream) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// Params returns the parameters the stream was created with
func (m *MockStream) Params() StreamParams {
	return m.params
}

// Callbacks returns how many times the stream callback ran
func (m *MockStream) Callbacks() int {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	return m.callbacks
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}

	if m.isClosed {
		return ErrStreamClosed
	}

	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	m.isOpen = true

	if m.simulateRealTiming {
		m.stopChannel = make(chan struct{})
		m.wg.Add(1)
		go m.simulatePlayback(m.stopChannel)
	}

	return nil
}

// Stop stops the mock stream and waits for an in-flight callback
func (m *MockStream) Stop() error {
	m.mu.Lock()
	if m.stopError != nil {
		err := m.stopError
		m.mu.Unlock()
		return err
	}

	if !m.isActive {
		m.mu.Unlock()
		return nil
	}

	m.isActive = false
	if m.stopChannel != nil {
		close(m.stopChannel)
		m.stopChannel = nil
	}
	m.mu.Unlock()

	m.wg.Wait()

	// Wait for a callback started before isActive was cleared
	m.callbackMu.Lock()
	m.callbackMu.Unlock()
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	closeErr := m.closeError
	closed := m.isClosed
	m.mu.Unlock()

	if closeErr != nil {
		return closeErr
	}
	if closed {
		return nil // Already closed
	}

	if err := m.Stop(); err != nil {
		return err
	}

	m.mu.Lock()
	m.isOpen = false
	m.isClosed = true
	m.mu.Unlock()

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// Pump runs the callback n times synchronously, as the audio thread would.
// It returns how many blocks were produced; none are produced while stopped.
func (m *MockStream) Pump(n int) int {
	produced := 0
	for i := 0; i < n; i++ {
		if !m.invoke() {
			break
		}
		produced++
	}
	return produced
}

// TriggerDeviceError delivers err to the stream's error callback
func (m *MockStream) TriggerDeviceError(err error) {
	reportError(m.params.ErrorCallback, err)
}

func (m *MockStream) invoke() bool {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()

	m.mu.Lock()
	active := m.isActive
	m.mu.Unlock()
	if !active {
		return false
	}

	m.params.Callback(m.buffer)
	m.callbacks++
	m.backend.record(m.buffer)
	return true
}

// simulatePlayback invokes the callback at the rate real hardware would
func (m *MockStream) simulatePlayback(stop <-chan struct{}) {
	defer m.wg.Done()

	period := time.Duration(float64(m.params.BufferSize) / m.params.SampleRate * float64(time.Second))
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.invoke()
		}
	}
}
