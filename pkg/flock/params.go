// Package flock implements the flocking update rule: the pure function that
// turns a read-only neighborhood snapshot into one agent's next position and
// direction.
package flock

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidRadius        = errors.New("interaction radius must be finite and >= 0")
	ErrInvalidJump          = errors.New("jump must be finite and > 0")
	ErrInvalidWeight        = errors.New("force weights must be finite")
	ErrInvalidMagnitude     = errors.New("random magnitude must be finite and >= 0")
	ErrInvalidNormalization = errors.New("unknown normalization")
	ErrNonFinite            = errors.New("update produced a non-finite state")
)

const (
	// AvoidanceScale multiplies the mean short-range repulsion.
	AvoidanceScale = 400.0
	// CohesionDivisor divides the mean offset; the sign flip makes it attractive.
	CohesionDivisor = -10.0
	// DefaultRandomMagnitude is the length of the random heading vector.
	DefaultRandomMagnitude = 0.05
	// DefaultRadius is the interaction radius of the reference flockers model.
	DefaultRadius = 10.0
	// DefaultJump is the maximum displacement per step.
	DefaultJump = 0.7
)

// Normalization selects how neighbor accumulators are averaged.
type Normalization string

const (
	// NormalizationReference divides avoidance and consistency by the
	// neighbor count twice and cohesion once, reproducing the reference
	// flockers model bit for bit.
	NormalizationReference Normalization = "reference"
	// NormalizationSingle divides all three accumulators once (plain means).
	NormalizationSingle Normalization = "single"
)

// Valid reports whether n is a known normalization. The empty value means
// NormalizationReference.
func (n Normalization) Valid() bool {
	switch n {
	case "", NormalizationReference, NormalizationSingle:
		return true
	}
	return false
}

// Weights scales each behavioral force before they are summed.
type Weights struct {
	Cohesion    float64 `json:"cohesion" yaml:"cohesion"`
	Avoidance   float64 `json:"avoidance" yaml:"avoidance"`
	Consistency float64 `json:"consistency" yaml:"consistency"`
	Randomness  float64 `json:"randomness" yaml:"randomness"`
	Momentum    float64 `json:"momentum" yaml:"momentum"`
}

// DefaultWeights are the flockers defaults.
func DefaultWeights() Weights {
	return Weights{
		Cohesion:    0.8,
		Avoidance:   1.0,
		Consistency: 0.7,
		Randomness:  1.1,
		Momentum:    1.0,
	}
}

// Validate rejects NaN and infinite weights.
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"cohesion", w.Cohesion},
		{"avoidance", w.Avoidance},
		{"consistency", w.Consistency},
		{"randomness", w.Randomness},
		{"momentum", w.Momentum},
	}
	for _, n := range named {
		if !finite(n.v) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, n.name, n.v)
		}
	}
	return nil
}

// Params is everything the rule needs besides the snapshot.
type Params struct {
	Radius          float64
	Jump            float64
	RandomMagnitude float64
	Weights         Weights
	Normalization   Normalization
}

// DefaultParams returns the reference model parameters.
func DefaultParams() Params {
	return Params{
		Radius:          DefaultRadius,
		Jump:            DefaultJump,
		RandomMagnitude: DefaultRandomMagnitude,
		Weights:         DefaultWeights(),
		Normalization:   NormalizationReference,
	}
}

// Validate checks every field and joins all problems found.
func (p Params) Validate() error {
	var errs []error
	if !finite(p.Radius) || p.Radius < 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidRadius, p.Radius))
	}
	if !finite(p.Jump) || p.Jump <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidJump, p.Jump))
	}
	if !finite(p.RandomMagnitude) || p.RandomMagnitude < 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidMagnitude, p.RandomMagnitude))
	}
	if err := p.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !p.Normalization.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidNormalization, p.Normalization))
	}
	return errors.Join(errs...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
