package ui

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Slider edits a float in [Min, Max] by clicking or dragging along its track.
type Slider struct {
	bounds
	Label    string
	Value    float64
	Min, Max float64

	changed bool
}

// NewSlider returns a slider clamped to [min, max].
func NewSlider(label string, min, max, value float64) *Slider {
	s := &Slider{bounds: bounds{H: 10}, Label: label, Min: min, Max: max}
	s.Set(value)
	s.changed = false
	return s
}

// Set clamps v into range and stores it.
func (s *Slider) Set(v float64) {
	v = max(s.Min, min(s.Max, v))
	if v != s.Value {
		s.Value = v
		s.changed = true
	}
}

// Changed reports whether the value moved since the previous call.
func (s *Slider) Changed() bool {
	c := s.changed
	s.changed = false
	return c
}

// Height leaves room for the label line above the track.
func (s *Slider) Height() float64 { return s.H + 25 }

func (s *Slider) Place(x, y, width float64) {
	s.X, s.Y, s.W = x, y+15, width
}

// Update follows the mouse while the left button is held over the track.
func (s *Slider) Update() {
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) || !s.hovered() {
		return
	}
	mx, _ := ebiten.CursorPosition()
	s.Set(s.Min + (float64(mx)-s.X)/s.W*(s.Max-s.Min))
}

func (s *Slider) Draw(screen *ebiten.Image) {
	ebitenutil.DebugPrintAt(screen, s.Label, int(s.X), int(s.Y-15))
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%.2f", s.Value), int(s.X+s.W-30), int(s.Y-15))

	vector.FillRect(screen, float32(s.X), float32(s.Y), float32(s.W), float32(s.H), trackColor, true)
	ratio := 0.0
	if s.Max > s.Min {
		ratio = (s.Value - s.Min) / (s.Max - s.Min)
	}
	vector.FillRect(screen, float32(s.X), float32(s.Y), float32(s.W*ratio), float32(s.H), fillColor, true)
}
