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

package oscillator

import (
	"math"
	"sync/atomic"
)

// SpeedSetter is implemented by anything that accepts a new phase increment
type SpeedSetter interface {
	SetSpeed(newSpeed float64)
}

// SpeedControl holds the phase increment in radians per sample.
// It is guarded on its own so that control-side writes never contend with
// the per-sample angle updates of the audio callback.
type SpeedControl struct {
	bits atomic.Uint64 // math.Float64bits of the speed
}

// NewSpeedControl creates a speed control with the given initial increment
func NewSpeedControl(initial float64) *SpeedControl {
	s := &SpeedControl{}
	s.Set(initial)
	return s
}

// Set stores a new increment. Any value is accepted: zero holds the phase,
// negative values run the sweep backwards.
func (s *SpeedControl) Set(newSpeed float64) {
	s.bits.Store(math.Float64bits(newSpeed))
}

// SetSpeed implements SpeedSetter
func (s *SpeedControl) SetSpeed(newSpeed float64) {
	s.Set(newSpeed)
}

// Load returns the current increment
func (s *SpeedControl) Load() float64 {
	return math.Float64frombits(s.bits.Load())
}
