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

package visualizer

import "math"

const (
	panelAspectRatio = 0.35
	panelMinWidth    = 250
	panelMargin      = 20
	panelRadius      = 15

	// fraction of the half height a full-scale sample reaches
	verticalFill = 0.95

	headerHeight = 40
	sliderHeight = 12
	sliderGap    = 28
)

// Point is a position in screen pixels
type Point struct {
	X, Y float32
}

// Rect is an axis-aligned rectangle in screen pixels
type Rect struct {
	X, Y, W, H float32
}

// Contains reports whether (x, y) lies inside r
func (r Rect) Contains(x, y float32) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// screenLayout places the waveform panel and the speed slider for a screen
// of the given size.
type screenLayout struct {
	panel  Rect
	slider Rect
}

func computeLayout(width, height int) screenLayout {
	w := float32(width) - 2*panelMargin
	if w < panelMinWidth {
		w = panelMinWidth
	}
	h := w * panelAspectRatio

	// Shrink to fit short windows but keep the aspect ratio
	avail := float32(height) - headerHeight - sliderGap - sliderHeight - 2*panelMargin
	if avail > 0 && h > avail {
		h = avail
		w = h / panelAspectRatio
	}

	x := (float32(width) - w) / 2
	slider := Rect{X: x, Y: headerHeight, W: w, H: sliderHeight}
	panel := Rect{X: x, Y: slider.Y + slider.H + sliderGap, W: w, H: h}
	return screenLayout{panel: panel, slider: slider}
}

// waveformPoints maps samples onto r, one point per sample, and appends them
// to dst. Samples run left to right across the panel with a small horizontal
// inset; a sample of 0 sits on the vertical center.
func waveformPoints(dst []Point, samples []float32, r Rect) []Point {
	dst = dst[:0]
	if len(samples) == 0 {
		return dst
	}

	inset := r.W / 200
	spacing := (r.W - 2*inset) / float32(len(samples))
	half := r.H / 2

	for i, v := range samples {
		dst = append(dst, Point{
			X: r.X + inset + spacing*float32(i),
			Y: r.Y + half*(v*verticalFill+1),
		})
	}
	return dst
}

// Slider is a bounded, stepped control value
type Slider struct {
	Min, Max, Step float64
	Value          float64
}

// NewSlider returns a slider over [min, max] holding initial (clamped)
func NewSlider(min, max, step, initial float64) *Slider {
	s := &Slider{Min: min, Max: max, Step: step}
	s.Set(initial)
	return s
}

// Set snaps v to the nearest step inside the range and stores it. It reports
// whether the stored value changed.
func (s *Slider) Set(v float64) bool {
	next := s.snap(v)
	if next == s.Value {
		return false
	}
	s.Value = next
	return true
}

// Nudge moves the value by n steps
func (s *Slider) Nudge(n int) bool {
	return s.Set(s.Value + float64(n)*s.Step)
}

// ValueAt returns the value under horizontal position x on track
func (s *Slider) ValueAt(x float32, track Rect) float64 {
	if track.W <= 0 {
		return s.Min
	}
	t := float64((x - track.X) / track.W)
	return s.snap(s.Min + t*(s.Max-s.Min))
}

// KnobX returns the horizontal position of the current value on track
func (s *Slider) KnobX(track Rect) float32 {
	if s.Max <= s.Min {
		return track.X
	}
	t := (s.Value - s.Min) / (s.Max - s.Min)
	return track.X + float32(t)*track.W
}

func (s *Slider) snap(v float64) float64 {
	if math.IsNaN(v) {
		return s.Min
	}
	if s.Step > 0 {
		v = s.Min + math.Round((v-s.Min)/s.Step)*s.Step
	}
	return math.Max(s.Min, math.Min(s.Max, v))
}

// frequencyHz converts a phase increment to the tone it produces at sampleRate
func frequencyHz(speed, sampleRate float64) float64 {
	return speed * sampleRate / (2 * math.Pi)
}
