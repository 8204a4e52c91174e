// Package ui holds the small immediate-mode widgets of the flock viewer.
package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

var (
	trackColor  = color.RGBA{R: 80, G: 80, B: 80, A: 255}
	fillColor   = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	accentColor = color.RGBA{R: 100, G: 200, B: 100, A: 255}
)

// Widget is one row of a Panel.
type Widget interface {
	Update()
	Draw(screen *ebiten.Image)
	// Height is the vertical space the row needs, margins included.
	Height() float64
	// Place moves the widget to its row.
	Place(x, y, width float64)
}

// bounds is an axis-aligned screen rectangle.
type bounds struct {
	X, Y, W, H float64
}

func (b bounds) contains(x, y int) bool {
	fx, fy := float64(x), float64(y)
	return fx >= b.X && fx <= b.X+b.W && fy >= b.Y && fy <= b.Y+b.H
}

func (b bounds) hovered() bool {
	return b.contains(ebiten.CursorPosition())
}

// click turns a held mouse button into a single press.
type click struct {
	held bool
}

// pressed reports true on the first frame the left button is down over b.
func (c *click) pressed(b bounds) bool {
	if b.hovered() && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		first := !c.held
		c.held = true
		return first
	}
	c.held = false
	return false
}
