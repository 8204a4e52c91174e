// Package space holds the simulation plane: its metric (plain or toroidal)
// and a bucketed spatial index answering radius queries.
package space

import (
	"errors"
	"fmt"
	"math"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
)

var (
	ErrInvalidDomain     = errors.New("domain width and height must be finite and > 0")
	ErrInvalidBucketSize = errors.New("bucket size must be finite and > 0")
	ErrNegativeRadius    = errors.New("query radius must be >= 0")
	ErrDuplicateAgent    = errors.New("agent already indexed")
	ErrUnknownAgent      = errors.New("agent not indexed")
	ErrStaleLocation     = errors.New("old position does not match the indexed bucket")
)

// Domain is the rectangle [0, Width) x [0, Height) agents live in.
// When Wrap is set, edges are glued together (torus) and distances take the
// shorter way around.
type Domain struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Wrap   bool    `json:"wrap" yaml:"wrap"`
}

// Validate rejects empty, negative or non-finite dimensions.
func (d Domain) Validate() error {
	if !validSize(d.Width) || !validSize(d.Height) {
		return fmt.Errorf("%w: got %vx%v", ErrInvalidDomain, d.Width, d.Height)
	}
	return nil
}

func validSize(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Delta returns the displacement going from `from` to `to`.
// On a torus each axis is folded onto the shorter path, so |dx| <= Width/2.
func (d Domain) Delta(from, to geometry.Vector2D) geometry.Vector2D {
	delta := to.Sub(from)
	if !d.Wrap {
		return delta
	}
	return geometry.Vector2D{
		X: foldAxis(delta.X, d.Width),
		Y: foldAxis(delta.Y, d.Height),
	}
}

// Distance is the length of Delta(a, b).
func (d Domain) Distance(a, b geometry.Vector2D) float64 {
	return d.Delta(a, b).Len()
}

// DistanceSq is the squared length of Delta(a, b).
func (d Domain) DistanceSq(a, b geometry.Vector2D) float64 {
	return d.Delta(a, b).LenSqr()
}

// Transform maps p back into the domain: modulo on a torus, clamping on a
// bounded plane.
func (d Domain) Transform(p geometry.Vector2D) geometry.Vector2D {
	if d.Wrap {
		return geometry.Vector2D{X: wrapAxis(p.X, d.Width), Y: wrapAxis(p.Y, d.Height)}
	}
	return geometry.Vector2D{X: clampAxis(p.X, d.Width), Y: clampAxis(p.Y, d.Height)}
}

// Contains reports whether p already lies inside the domain.
func (d Domain) Contains(p geometry.Vector2D) bool {
	if d.Wrap {
		return p.X >= 0 && p.X < d.Width && p.Y >= 0 && p.Y < d.Height
	}
	return p.X >= 0 && p.X <= d.Width && p.Y >= 0 && p.Y <= d.Height
}

func foldAxis(delta, size float64) float64 {
	half := size / 2
	if delta > half {
		return delta - size
	}
	if delta < -half {
		return delta + size
	}
	return delta
}

// wrapAxis returns x mod size in [0, size), negatives included.
func wrapAxis(x, size float64) float64 {
	m := math.Mod(x, size)
	if m < 0 {
		m += size
	}
	// -tiny + size rounds to size
	if m >= size {
		m = 0
	}
	return m
}

func clampAxis(x, size float64) float64 {
	if x < 0 {
		return 0
	}
	if x > size {
		return size
	}
	return x
}
