package ui

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// Checkbox toggles a boolean on click.
type Checkbox struct {
	bounds
	Label string
	Value bool

	click click
}

func NewCheckbox(label string, value bool) *Checkbox {
	return &Checkbox{bounds: bounds{W: 16, H: 16}, Label: label, Value: value}
}

func (c *Checkbox) Height() float64 { return c.H + 6 }

func (c *Checkbox) Place(x, y, _ float64) {
	c.X, c.Y = x, y
}

// Update toggles once per click, however long the button is held.
func (c *Checkbox) Update() {
	if c.click.pressed(c.bounds) {
		c.Value = !c.Value
	}
}

func (c *Checkbox) Draw(screen *ebiten.Image) {
	vector.StrokeRect(screen, float32(c.X), float32(c.Y), float32(c.W), float32(c.H), 2, fillColor, true)
	if c.Value {
		vector.FillRect(screen, float32(c.X+2), float32(c.Y+2), float32(c.W-4), float32(c.H-4), accentColor, true)
	}
	ebitenutil.DebugPrintAt(screen, c.Label, int(c.X+c.W+8), int(c.Y))
}
