// Package stream derives independent, reproducible random generators keyed
// by (seed, agent id, step). The generator an agent sees never depends on
// which goroutine runs it or in which order agents are processed.
package stream

import (
	"fmt"
	"math/rand/v2"
)

// purpose salts keep placement draws and step draws from ever sharing a stream.
const (
	purposeStep      uint64 = 0x73746570         // "step"
	purposePlacement uint64 = 0x706c6163656d6e74 // "placemnt"
)

// Key identifies one stream.
type Key struct {
	Seed  uint64
	Agent uint32
	Step  uint64
}

// String implements fmt.Stringer for log lines.
func (k Key) String() string {
	return fmt.Sprintf("seed=%d agent=%d step=%d", k.Seed, k.Agent, k.Step)
}

// Stream returns the generator for k. See For.
func (k Key) Stream() *rand.Rand {
	return For(k.Seed, k.Agent, k.Step)
}

// For returns a fresh generator for agent `agent` at step `step` of the run
// seeded with `seed`. It is a pure function of its inputs: two calls with the
// same triple yield generators producing the same sequence.
func For(seed uint64, agent uint32, step uint64) *rand.Rand {
	return derive(seed, agent, step, purposeStep)
}

// Placement returns the generator used to place agent `agent` before step 0.
func Placement(seed uint64, agent uint32) *rand.Rand {
	return derive(seed, agent, 0, purposePlacement)
}

func derive(seed uint64, agent uint32, step, purpose uint64) *rand.Rand {
	k := splitmix64(seed ^ purpose)
	k = splitmix64(k ^ uint64(agent))
	hi := splitmix64(k ^ splitmix64(step))
	lo := splitmix64(hi ^ purpose)
	return rand.New(rand.NewPCG(hi, lo))
}

// splitmix64 is the finalizer from Steele, Lea and Flood (2014); it spreads
// nearby inputs (consecutive ids, consecutive steps) over the whole space.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
