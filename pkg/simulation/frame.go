package simulation

import (
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
)

// Agent is one row of a Frame.
type Agent struct {
	ID        space.AgentID     `json:"id"`
	Position  geometry.Vector2D `json:"position"`
	Direction geometry.Vector2D `json:"direction"`
}

// Frame is a copy of a committed snapshot. It stays valid after later steps.
type Frame struct {
	Step       uint64              `json:"step"`
	Positions  []geometry.Vector2D `json:"positions"`
	Directions []geometry.Vector2D `json:"directions"`
}

// Len returns the number of agents in the frame.
func (f *Frame) Len() int { return len(f.Positions) }

// Agent returns row i.
func (f *Frame) Agent(i int) Agent {
	return Agent{ID: space.AgentID(i), Position: f.Positions[i], Direction: f.Directions[i]}
}

// Agents returns every row, ordered by id.
func (f *Frame) Agents() []Agent {
	out := make([]Agent, len(f.Positions))
	for i := range out {
		out[i] = f.Agent(i)
	}
	return out
}

// Centroid returns the arithmetic mean of the positions, ignoring wraparound.
// It is the zero vector for an empty frame.
func (f *Frame) Centroid() geometry.Vector2D {
	var c geometry.Vector2D
	if len(f.Positions) == 0 {
		return c
	}
	for _, p := range f.Positions {
		c = c.Add(p)
	}
	c, _ = c.Div(float64(len(f.Positions)))
	return c
}
