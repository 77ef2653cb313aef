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

// Package oscillator provides the phase-accumulating sine generator that runs
// inside the audio callback, and the speed control that steers it.
package oscillator

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-scope/internal/window"
)

// TwoPi is the period of the generated waveform in radians
const TwoPi = 2 * math.Pi

// Oscillator generates sin(angle) and advances angle by the current speed each sample
type Oscillator struct {
	mu    sync.Mutex
	angle float64 // always in [0, 2π)

	speed *SpeedControl

	blocks  atomic.Uint64
	dropped atomic.Uint64
}

// NewOscillator creates an oscillator at angle 0 driven by speed
func NewOscillator(speed *SpeedControl) *Oscillator {
	if speed == nil {
		speed = NewSpeedControl(0)
	}
	return &Oscillator{speed: speed}
}

// Advance fills out with consecutive samples and publishes the block to w.
//
// It must only be called from the audio callback. It never fails and never
// allocates. The angle is held in one critical section for the whole block and
// the window is replaced in a single critical section after the block is done.
// A block whose length does not match the window is still played but not
// published; it is counted in DroppedBlocks.
func (o *Oscillator) Advance(out []float32, w *window.SampleWindow) {
	o.mu.Lock()
	angle := o.angle
	for i := range out {
		step := o.speed.Load()
		if math.IsNaN(step) || math.IsInf(step, 0) {
			step = 0
		}

		out[i] = float32(math.Sin(angle))
		angle = wrap(angle + step)
	}
	o.angle = angle
	o.mu.Unlock()

	o.blocks.Add(1)

	if w == nil {
		return
	}
	if len(out) != w.Capacity() {
		o.dropped.Add(1)
		return
	}
	_ = w.ReplaceAll(out) // length checked above
}

// wrap reduces a into [0, 2π) in constant time
func wrap(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
		// a tiny negative remainder rounds up to exactly 2π
		if a >= TwoPi {
			a = 0
		}
	}
	return a
}

// Angle returns the current phase in radians
func (o *Oscillator) Angle() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.angle
}

// Reset puts the phase back to 0
func (o *Oscillator) Reset() {
	o.mu.Lock()
	o.angle = 0
	o.mu.Unlock()
}

// Speed returns the speed control driving this oscillator
func (o *Oscillator) Speed() *SpeedControl {
	return o.speed
}

// Blocks returns the number of completed Advance calls
func (o *Oscillator) Blocks() uint64 {
	return o.blocks.Load()
}

// DroppedBlocks returns the number of blocks that could not be published
func (o *Oscillator) DroppedBlocks() uint64 {
	return o.dropped.Load()
}
