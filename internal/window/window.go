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

// Package window holds the most recent block of generated samples so that
// a non-real-time reader can observe it without stalling the audio callback.
package window

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLengthMismatch is returned when a block does not match the window capacity
var ErrLengthMismatch = errors.New("block length does not match window capacity")

// SampleWindow is a fixed-capacity buffer with one writer and any number of readers.
//
// A reader either sees nothing (before the first block) or exactly Capacity()
// samples that all came from the same ReplaceAll call.
type SampleWindow struct {
	mu       sync.RWMutex
	samples  []float32 // backing array, allocated once
	length   int       // 0 until the first block, then len(samples)
	sequence uint64    // number of completed ReplaceAll calls
}

// New creates a window that holds exactly capacity samples.
// capacity is block size times channel count and must be positive.
func New(capacity int) *SampleWindow {
	if capacity <= 0 {
		panic(fmt.Sprintf("window: capacity must be positive, got %d", capacity))
	}
	return &SampleWindow{
		samples: make([]float32, capacity),
	}
}

// ReplaceAll discards the previous block and stores samples in one critical section.
// It does not allocate, so it is safe to call from the audio callback.
func (w *SampleWindow) ReplaceAll(samples []float32) error {
	if len(samples) != len(w.samples) {
		return fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(samples), len(w.samples))
	}

	w.mu.Lock()
	copy(w.samples, samples)
	w.length = len(w.samples)
	w.sequence++
	w.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current block.
// Before the first block it returns an empty, non-nil slice.
func (w *SampleWindow) Snapshot() []float32 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]float32, w.length)
	copy(out, w.samples[:w.length])
	return out
}

// SnapshotInto copies the current block into dst, growing it only when it is too
// small, and returns the sequence number of the copied block (0 = not ready).
func (w *SampleWindow) SnapshotInto(dst []float32) ([]float32, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if cap(dst) < w.length {
		dst = make([]float32, w.length)
	}
	dst = dst[:w.length]
	copy(dst, w.samples[:w.length])
	return dst, w.sequence
}

// Capacity returns the fixed number of samples per block
func (w *SampleWindow) Capacity() int {
	return len(w.samples)
}

// Len returns the number of samples currently observable
func (w *SampleWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.length
}

// Sequence returns how many blocks have been written
func (w *SampleWindow) Sequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sequence
}

// Ready reports whether at least one block has been written
func (w *SampleWindow) Ready() bool {
	return w.Sequence() > 0
}
