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

import (
	"errors"
	"fmt"
	"image/color"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"

	"github.com/loqalabs/loqa-scope/internal/audio"
)

// Title is the window title
const Title = "Radio Modulation Visualizer"

const (
	SpeedMin  = 0.0
	SpeedMax  = 0.1
	SpeedStep = 0.0001

	defaultWidth  = 960
	defaultHeight = 480

	currentStroke = 2.5
	trailStroke   = 5.0
)

var (
	// ErrWindowMismatch means the sample window held a block of the wrong size
	// after audio had started. It ends the render loop.
	ErrWindowMismatch = errors.New("sample window length mismatch")

	backgroundColor = color.RGBA{0x1b, 0x1b, 0x1f, 0xff}
	titleColor      = color.RGBA{0xee, 0xee, 0xee, 0xff}
	statusColor     = color.RGBA{0xbe, 0xbe, 0xbe, 0xff}
	panelColor      = color.RGBA{0x0a, 0x0a, 0x0c, 0xff}
	trackColor      = color.RGBA{0x3a, 0x3a, 0x44, 0xff}
	knobColor       = color.RGBA{0xd0, 0xd0, 0xd8, 0xff}
	waveColor       = color.RGBA{0xff, 0x00, 0xff, 0xff}
	trailColor      = color.RGBA{0x55, 0x00, 0x55, 0x55}
)

// Source is the live audio the visualizer draws and steers
type Source interface {
	SnapshotInto(dst []float32) ([]float32, uint64)
	SetSpeed(speed float64)
	Speed() float64
	BlockLen() int
	Stats() audio.StreamStats
}

// Options configures the visualizer window
type Options struct {
	SampleRate float64 // used for the frequency readout
	Width      int
	Height     int
	Done       <-chan struct{} // closes the window when closed
}

// Game implements ebiten.Game for the waveform scope
type Game struct {
	source     Source
	done       <-chan struct{}
	sampleRate float64
	blockLen   int
	slider     *Slider
	dragging   bool

	// current, previous and scratch blocks rotate so a tick never allocates
	current  []float32
	previous []float32
	scratch  []float32
	lastSeq  uint64
	hasPrev  bool

	points []Point
	width  int
	height int
	layout screenLayout
}

// New creates a visualizer for source. The slider starts at the source's
// current speed.
func New(source Source, opts Options) *Game {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}

	n := source.BlockLen()
	return &Game{
		source:     source,
		done:       opts.Done,
		sampleRate: opts.SampleRate,
		blockLen:   n,
		slider:     NewSlider(SpeedMin, SpeedMax, SpeedStep, source.Speed()),
		current:    make([]float32, 0, n),
		previous:   make([]float32, 0, n),
		scratch:    make([]float32, 0, n),
		points:     make([]Point, 0, n),
		width:      opts.Width,
		height:     opts.Height,
		layout:     computeLayout(opts.Width, opts.Height),
	}
}

// Run opens the window and blocks until it is closed or the game fails
func Run(g *Game) error {
	ebiten.SetWindowTitle(Title)
	ebiten.SetWindowSize(g.width, g.height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	log.Printf("🖥️ Scope: Opening visualizer window (%dx%d)", g.width, g.height)
	if err := ebiten.RunGame(g); err != nil {
		if errors.Is(err, ebiten.Termination) {
			return nil
		}
		return err
	}
	return nil
}

// Update handles input and pulls the latest block from the source
func (g *Game) Update() error {
	if g.closing() || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	g.handleKeys()
	g.handleMouse()
	return g.refresh()
}

func (g *Game) closing() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *Game) handleKeys() {
	step := 1
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		step = 10
	}
	if repeating(inpututil.KeyPressDuration(ebiten.KeyArrowUp)) {
		g.nudge(step)
	}
	if repeating(inpututil.KeyPressDuration(ebiten.KeyArrowDown)) {
		g.nudge(-step)
	}
}

// repeating fires on the first tick a key is held and then every few ticks
// after a short delay
func repeating(ticks int) bool {
	return ticks == 1 || (ticks >= 30 && ticks%4 == 0)
}

func (g *Game) handleMouse() {
	x, y := ebiten.CursorPosition()
	fx, fy := float32(x), float32(y)

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		hit := g.layout.slider
		hit.Y -= sliderHeight
		hit.H += 2 * sliderHeight
		g.dragging = hit.Contains(fx, fy)
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.dragging = false
	}
	if g.dragging {
		g.setSpeed(g.slider.ValueAt(fx, g.layout.slider))
	}
}

func (g *Game) nudge(steps int) {
	if g.slider.Nudge(steps) {
		g.source.SetSpeed(g.slider.Value)
	}
}

func (g *Game) setSpeed(v float64) {
	if g.slider.Set(v) {
		g.source.SetSpeed(g.slider.Value)
	}
}

// refresh copies the newest block out of the window. An empty window means
// audio has not produced a block yet and the tick is skipped. Any other
// length is a defect.
func (g *Game) refresh() error {
	// Follow changes made by other controllers unless the user is dragging
	if !g.dragging {
		g.slider.Set(g.source.Speed())
	}

	var seq uint64
	g.scratch, seq = g.source.SnapshotInto(g.scratch)
	if len(g.scratch) == 0 {
		return nil
	}
	if len(g.scratch) != g.blockLen {
		return fmt.Errorf("%w: got %d samples, expected %d", ErrWindowMismatch, len(g.scratch), g.blockLen)
	}
	if seq == g.lastSeq {
		return nil
	}

	g.hasPrev = g.lastSeq != 0
	g.previous, g.current, g.scratch = g.current, g.scratch, g.previous
	g.lastSeq = seq
	return nil
}

// Draw renders the header, slider and waveform panel
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)
	l := g.layout

	stats := g.source.Stats()
	face := basicfont.Face7x13
	text.Draw(screen, Title, face, int(l.slider.X), 16, titleColor)
	text.Draw(screen, g.statusLine(stats), face, int(l.slider.X), 32, statusColor)

	g.drawSlider(screen, l.slider)

	drawRoundedRect(screen, l.panel, panelRadius, panelColor)
	if len(g.current) == 0 {
		ebitenutil.DebugPrintAt(screen, "waiting for audio...", int(l.panel.X)+12, int(l.panel.Y)+12)
		return
	}

	// The trail goes underneath the current block
	if g.hasPrev {
		g.points = waveformPoints(g.points, g.previous, l.panel)
		strokePolyline(screen, g.points, trailStroke, trailColor)
	}
	g.points = waveformPoints(g.points, g.current, l.panel)
	strokePolyline(screen, g.points, currentStroke, waveColor)
}

func (g *Game) statusLine(stats audio.StreamStats) string {
	line := fmt.Sprintf("speed %.4f rad/sample", stats.Speed)
	if g.sampleRate > 0 {
		line += fmt.Sprintf("  ~%.1f Hz", frequencyHz(stats.Speed, g.sampleRate))
	}
	line += fmt.Sprintf("  blocks %d", stats.Blocks)
	if stats.DroppedBlocks > 0 || stats.DeviceErrors > 0 {
		line += fmt.Sprintf("  dropped %d  device errors %d", stats.DroppedBlocks, stats.DeviceErrors)
	}
	return line
}

func (g *Game) drawSlider(screen *ebiten.Image, track Rect) {
	mid := track.Y + track.H/2
	vector.StrokeLine(screen, track.X, mid, track.X+track.W, mid, 4, trackColor, true)
	vector.DrawFilledCircle(screen, g.slider.KnobX(track), mid, track.H/2+2, knobColor, true)
}

// Layout follows the window size so the panel scales with it
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != g.width || outsideHeight != g.height {
		g.width, g.height = outsideWidth, outsideHeight
		g.layout = computeLayout(outsideWidth, outsideHeight)
	}
	return outsideWidth, outsideHeight
}

func strokePolyline(dst *ebiten.Image, pts []Point, width float32, clr color.Color) {
	for i := 1; i < len(pts); i++ {
		vector.StrokeLine(dst, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y, width, clr, true)
	}
}

func drawRoundedRect(dst *ebiten.Image, r Rect, radius float32, clr color.Color) {
	if radius*2 > r.W {
		radius = r.W / 2
	}
	if radius*2 > r.H {
		radius = r.H / 2
	}
	vector.DrawFilledRect(dst, r.X+radius, r.Y, r.W-2*radius, r.H, clr, false)
	vector.DrawFilledRect(dst, r.X, r.Y+radius, r.W, r.H-2*radius, clr, false)
	for _, c := range [4]Point{
		{r.X + radius, r.Y + radius},
		{r.X + r.W - radius, r.Y + radius},
		{r.X + radius, r.Y + r.H - radius},
		{r.X + r.W - radius, r.Y + r.H - radius},
	} {
		vector.DrawFilledCircle(dst, c.X, c.Y, radius, clr, true)
	}
}
