package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	titleHeight  = 30
	headerHeight = 25
	padding      = 10
	scrollStep   = 20
)

// header is a section title row.
type header struct {
	bounds
	title string
}

func (h *header) Update()         {}
func (h *header) Height() float64 { return headerHeight }

func (h *header) Place(x, y, width float64) {
	h.X, h.Y, h.W, h.H = x-5, y, width+10, headerHeight-5
}

func (h *header) Draw(screen *ebiten.Image) {
	vector.FillRect(screen, float32(h.X), float32(h.Y), float32(h.W), float32(h.H), color.RGBA{R: 60, G: 60, B: 70, A: 255}, true)
	ebitenutil.DebugPrintAt(screen, h.title, int(h.X+5), int(h.Y+5))
}

// UIPanel stacks widgets in a scrollable column.
type UIPanel struct {
	bounds
	Title  string
	rows   []Widget
	scroll float64

	BGColor     color.RGBA
	BorderColor color.RGBA
}

func NewUIPanel(title string, x, y, width, height float64) *UIPanel {
	return &UIPanel{
		bounds:      bounds{X: x, Y: y, W: width, H: height},
		Title:       title,
		BGColor:     color.RGBA{R: 40, G: 40, B: 45, A: 230},
		BorderColor: color.RGBA{R: 100, G: 100, B: 110, A: 255},
	}
}

// Add appends a row and returns it.
func (p *UIPanel) Add(w Widget) Widget {
	p.rows = append(p.rows, w)
	p.layout()
	return w
}

// AddSection starts a titled group; following rows belong to it.
func (p *UIPanel) AddSection(title string) {
	p.Add(&header{title: title})
}

func (p *UIPanel) AddSlider(label string, min, max, value float64) *Slider {
	s := NewSlider(label, min, max, value)
	p.Add(s)
	return s
}

func (p *UIPanel) AddCheckbox(label string, value bool) *Checkbox {
	c := NewCheckbox(label, value)
	p.Add(c)
	return c
}

func (p *UIPanel) AddButton(label string, onClick func()) *Button {
	b := NewButton(label, onClick)
	p.Add(b)
	return b
}

func (p *UIPanel) contentHeight() float64 {
	h := float64(titleHeight)
	for _, w := range p.rows {
		h += w.Height()
	}
	return h
}

// layout places every row at its scrolled position.
func (p *UIPanel) layout() {
	y := p.Y + titleHeight - p.scroll
	for _, w := range p.rows {
		w.Place(p.X+padding, y, p.W-2*padding)
		y += w.Height()
	}
}

// visible reports whether a row starting at y fits inside the panel.
func (p *UIPanel) visible(y, h float64) bool {
	return y >= p.Y+titleHeight-5 && y+h <= p.Y+p.H
}

// Update scrolls with the wheel and forwards input to the visible rows.
func (p *UIPanel) Update() {
	if _, dy := ebiten.Wheel(); dy != 0 {
		maxScroll := max(0, p.contentHeight()-p.H+padding)
		p.scroll = max(0, min(maxScroll, p.scroll-dy*scrollStep))
	}
	p.layout()

	y := p.Y + titleHeight - p.scroll
	for _, w := range p.rows {
		if p.visible(y, w.Height()) {
			w.Update()
		}
		y += w.Height()
	}
}

func (p *UIPanel) Draw(screen *ebiten.Image) {
	vector.FillRect(screen, float32(p.X), float32(p.Y), float32(p.W), float32(p.H), p.BGColor, true)
	vector.StrokeRect(screen, float32(p.X), float32(p.Y), float32(p.W), float32(p.H), 2, p.BorderColor, true)
	ebitenutil.DebugPrintAt(screen, p.Title, int(p.X+padding), int(p.Y+5))

	y := p.Y + titleHeight - p.scroll
	for _, w := range p.rows {
		if p.visible(y, w.Height()) {
			w.Draw(screen)
		}
		y += w.Height()
	}
}
