package flock

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
)

// Snapshot is the read-only view of the committed step-start state an update
// may consult. Implementations must stay unchanged for the whole parallel
// phase of a step.
type Snapshot interface {
	Position(id space.AgentID) geometry.Vector2D
	Direction(id space.AgentID) geometry.Vector2D
	NeighborsWithin(pos geometry.Vector2D, radius float64, excl space.Exclusion) ([]space.AgentID, error)
	Domain() space.Domain
}

// State is what an update produces for one agent.
type State struct {
	Position  geometry.Vector2D `json:"position"`
	Direction geometry.Vector2D `json:"direction"`
}

// Forces is the per-term breakdown of one update, before weighting.
type Forces struct {
	Neighbors   int
	Avoidance   geometry.Vector2D
	Cohesion    geometry.Vector2D
	Consistency geometry.Vector2D
	Randomness  geometry.Vector2D
	Momentum    geometry.Vector2D
}

// Rule is the flocking update. It holds no mutable state: one Rule serves
// every agent on every goroutine.
type Rule struct {
	params Params
}

// NewRule validates p and returns the rule.
func NewRule(p Params) (*Rule, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Normalization == "" {
		p.Normalization = NormalizationReference
	}
	return &Rule{params: p}, nil
}

// Params returns the parameters the rule was built with.
func (r *Rule) Params() Params { return r.params }

// Update computes the next state of agent self from the snapshot, drawing
// randomness only from rng.
func (r *Rule) Update(self space.AgentID, snap Snapshot, rng *rand.Rand) (State, error) {
	f, err := r.Forces(self, snap, rng)
	if err != nil {
		return State{}, err
	}

	v := r.Velocity(f)
	pos := snap.Domain().Transform(snap.Position(self).Add(v))
	if !v.IsFinite() || !pos.IsFinite() {
		return State{}, fmt.Errorf("agent %d: %w: velocity %v", self, ErrNonFinite, v)
	}
	return State{Position: pos, Direction: v}, nil
}

// Forces gathers the five raw force terms for agent self.
func (r *Rule) Forces(self space.AgentID, snap Snapshot, rng *rand.Rand) (Forces, error) {
	domain := snap.Domain()
	pos := snap.Position(self)

	ids, err := snap.NeighborsWithin(pos, r.params.Radius, space.Exclude(self))
	if err != nil {
		return Forces{}, fmt.Errorf("agent %d: neighbor query: %w", self, err)
	}

	var avoid, cohe, cons geometry.Vector2D
	for _, id := range ids {
		// offset pointing from the neighbor to us
		d := domain.Delta(snap.Position(id), pos)
		sq := d.LenSqr()
		den := (sq + 1) * (sq + 1)
		avoid.X += d.X / den
		avoid.Y += d.Y / den

		cohe.X += d.X
		cohe.Y += d.Y

		dir := snap.Direction(id)
		cons.X += dir.X
		cons.Y += dir.Y
	}

	if n := float64(len(ids)); n > 0 {
		avoid = geometry.Vector2D{X: avoid.X / n, Y: avoid.Y / n}
		cohe = geometry.Vector2D{X: cohe.X / n, Y: cohe.Y / n}
		cons = geometry.Vector2D{X: cons.X / n, Y: cons.Y / n}
		if r.params.Normalization == NormalizationReference {
			avoid = geometry.Vector2D{X: avoid.X / n, Y: avoid.Y / n}
			cons = geometry.Vector2D{X: cons.X / n, Y: cons.Y / n}
		}
	}

	return Forces{
		Neighbors:   len(ids),
		Avoidance:   geometry.Vector2D{X: AvoidanceScale * avoid.X, Y: AvoidanceScale * avoid.Y},
		Cohesion:    geometry.Vector2D{X: cohe.X / CohesionDivisor, Y: cohe.Y / CohesionDivisor},
		Consistency: cons,
		Randomness:  Jitter(rng, r.params.RandomMagnitude),
		Momentum:    snap.Direction(self),
	}, nil
}

// Velocity weights and sums the forces, then clamps the result to the jump
// length.
func (r *Rule) Velocity(f Forces) geometry.Vector2D {
	w := r.params.Weights
	v := geometry.Vector2D{
		X: w.Cohesion*f.Cohesion.X + w.Avoidance*f.Avoidance.X + w.Consistency*f.Consistency.X +
			w.Randomness*f.Randomness.X + w.Momentum*f.Momentum.X,
		Y: w.Cohesion*f.Cohesion.Y + w.Avoidance*f.Avoidance.Y + w.Consistency*f.Consistency.Y +
			w.Randomness*f.Randomness.Y + w.Momentum*f.Momentum.Y,
	}
	v, _ = v.ClampLen(r.params.Jump)
	return v
}

// Jitter draws a vector of the given length with a random heading. It
// consumes two uniforms per attempt and retries on the (rare) null draw, so
// the number of draws depends only on the stream.
func Jitter(rng *rand.Rand, magnitude float64) geometry.Vector2D {
	for {
		r1 := rng.Float64()*2 - 1
		r2 := rng.Float64()*2 - 1
		l := math.Sqrt(r1*r1 + r2*r2)
		if l > 0 {
			return geometry.Vector2D{X: magnitude * r1 / l, Y: magnitude * r2 / l}
		}
	}
}
