// Package behavior holds the classic Reynolds boids model (1987) expressed
// as a step rule: separation inside a protected range, alignment and
// cohesion inside a visual range, speed limits, and soft turning near the
// walls of a bounded world. https://en.wikipedia.org/wiki/Boids
package behavior

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
)

var ErrInvalidSettings = errors.New("invalid boids settings")

// Settings controls the physics constants of the boids rule.
type Settings struct {
	VisualRange    float64 `json:"visualRange" yaml:"visualRange"`       // How far can they see?
	ProtectedRange float64 `json:"protectedRange" yaml:"protectedRange"` // Personal space radius

	CenteringFactor float64 `json:"centeringFactor" yaml:"centeringFactor"` // Cohesion strength
	AvoidFactor     float64 `json:"avoidFactor" yaml:"avoidFactor"`         // Separation strength
	MatchingFactor  float64 `json:"matchingFactor" yaml:"matchingFactor"`   // Alignment strength
	TurnFactor      float64 `json:"turnFactor" yaml:"turnFactor"`           // Edge turning strength
	Margin          float64 `json:"margin" yaml:"margin"`                   // Distance from a wall where turning starts

	MaxSpeed float64 `json:"maxSpeed" yaml:"maxSpeed"`
	MinSpeed float64 `json:"minSpeed" yaml:"minSpeed"`
}

func DefaultSettings() Settings {
	return Settings{
		VisualRange:     20.0,
		ProtectedRange:  4.0,
		CenteringFactor: 0.0005,
		AvoidFactor:     0.05,
		MatchingFactor:  0.05,
		TurnFactor:      0.2,
		Margin:          20.0,
		MaxSpeed:        2.0,
		MinSpeed:        0.5,
	}
}

// Validate rejects non-finite values, negative ranges and inverted speed
// limits.
func (s Settings) Validate() error {
	for _, v := range []float64{s.VisualRange, s.ProtectedRange, s.CenteringFactor, s.AvoidFactor,
		s.MatchingFactor, s.TurnFactor, s.Margin, s.MaxSpeed, s.MinSpeed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalidSettings, v)
		}
	}
	switch {
	case s.VisualRange < 0 || s.ProtectedRange < 0:
		return fmt.Errorf("%w: ranges must be >= 0", ErrInvalidSettings)
	case s.Margin < 0:
		return fmt.Errorf("%w: margin must be >= 0", ErrInvalidSettings)
	case s.MaxSpeed <= 0:
		return fmt.Errorf("%w: maxSpeed must be > 0", ErrInvalidSettings)
	case s.MinSpeed < 0 || s.MinSpeed > s.MaxSpeed:
		return fmt.Errorf("%w: minSpeed must be in [0, maxSpeed]", ErrInvalidSettings)
	}
	return nil
}

// Rule is the boids update. The agent direction is its velocity.
type Rule struct {
	s Settings
}

func New(s Settings) (*Rule, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Rule{s: s}, nil
}

// Update computes the next state of agent self. rng is only consumed to give
// a heading to an agent that has come to a full stop.
func (r *Rule) Update(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error) {
	s := r.s
	domain := snap.Domain()
	pos := snap.Position(self)
	v := snap.Direction(self)

	ids, err := snap.NeighborsWithin(pos, max(s.VisualRange, s.ProtectedRange), space.Exclude(self))
	if err != nil {
		return flock.State{}, fmt.Errorf("agent %d: neighbor query: %w", self, err)
	}

	var sep, velAvg, offAvg geometry.Vector2D
	neighbors := 0.0
	for _, id := range ids {
		// offset from the neighbor to us
		d := domain.Delta(snap.Position(id), pos)
		distSq := d.LenSqr()

		// 1. Separation
		if distSq < s.ProtectedRange*s.ProtectedRange {
			sep = sep.Add(d)
		}

		// Check visual range for Cohesion/Alignment
		if distSq < s.VisualRange*s.VisualRange {
			velAvg = velAvg.Add(snap.Direction(id))
			offAvg = offAvg.Sub(d)
			neighbors++
		}
	}

	v = v.Add(sep.Mul(s.AvoidFactor))

	if neighbors > 0 {
		velAvg = velAvg.Mul(1 / neighbors)
		offAvg = offAvg.Mul(1 / neighbors)
		v = v.Add(velAvg.Sub(v).Mul(s.MatchingFactor))
		// offsets are relative to us, so this is (centroid - pos)
		v = v.Add(offAvg.Mul(s.CenteringFactor))
	}

	if !domain.Wrap {
		if pos.X < s.Margin {
			v.X += s.TurnFactor
		}
		if pos.X > domain.Width-s.Margin {
			v.X -= s.TurnFactor
		}
		if pos.Y < s.Margin {
			v.Y += s.TurnFactor
		}
		if pos.Y > domain.Height-s.Margin {
			v.Y -= s.TurnFactor
		}
	}

	// Speed Limits
	speed := v.Len()
	switch {
	case speed > s.MaxSpeed:
		v = v.Mul(s.MaxSpeed / speed)
	case speed == 0:
		if s.MinSpeed > 0 {
			v = flock.Jitter(rng, s.MinSpeed)
		}
	case speed < s.MinSpeed:
		v = v.Mul(s.MinSpeed / speed)
	}

	next := domain.Transform(pos.Add(v))
	if !v.IsFinite() || !next.IsFinite() {
		return flock.State{}, fmt.Errorf("agent %d: %w: velocity %v", self, flock.ErrNonFinite, v)
	}
	return flock.State{Position: next, Direction: v}, nil
}
