// Package geometry holds the plane vector shared by positions and directions.
package geometry

import (
	"fmt"
	"math"
)

// Epsilon is the tolerance used by Eq and Normalize.
const Epsilon = 1e-9

// Vector2D is a point or a displacement. It is plain data and always passed
// by value, so a copy in one buffer slot never aliases another.
type Vector2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Zero is the null vector.
var Zero = Vector2D{}

func (v Vector2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y)
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vector2D) Mul(k float64) Vector2D  { return Vector2D{X: v.X * k, Y: v.Y * k} }

// Div divides both components by k. A zero k yields Zero and false, so means
// over empty neighborhoods stay finite.
func (v Vector2D) Div(k float64) (Vector2D, bool) {
	if k == 0 {
		return Zero, false
	}
	return Vector2D{X: v.X / k, Y: v.Y / k}, true
}

// LenSqr is the squared length; compare it against r*r for radius tests.
func (v Vector2D) LenSqr() float64 { return v.X*v.X + v.Y*v.Y }

func (v Vector2D) Len() float64 { return math.Sqrt(v.LenSqr()) }

// Normalize returns the unit vector along v, or Zero when v is shorter than
// Epsilon.
func (v Vector2D) Normalize() Vector2D {
	l := v.Len()
	if l < Epsilon {
		return Zero
	}
	return v.Mul(1 / l)
}

// ClampLen shortens v to exactly limit when it is longer, keeping its
// direction, and reports whether it did.
func (v Vector2D) ClampLen(limit float64) (Vector2D, bool) {
	l := v.Len()
	if l <= limit || l == 0 {
		return v, false
	}
	return v.Mul(limit / l), true
}

// Angle is the heading of v in radians, in [-Pi, Pi].
func (v Vector2D) Angle() float64 { return math.Atan2(v.Y, v.X) }

// IsFinite reports whether neither component is NaN or infinite.
func (v Vector2D) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Eq compares component-wise within Epsilon.
func (v Vector2D) Eq(o Vector2D) bool { return v.EqWithin(o, Epsilon) }

// EqWithin compares component-wise within tol.
func (v Vector2D) EqWithin(o Vector2D, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol && math.Abs(v.Y-o.Y) <= tol
}
