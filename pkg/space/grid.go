package space

import (
	"fmt"
	"math"
	"slices"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
)

// AgentID is the stable identity of an agent. Ids are dense: 0..N-1.
type AgentID uint32

type gridKey struct {
	x, y int
}

type entry struct {
	id  AgentID
	pos geometry.Vector2D
}

// Exclusion tells a radius query whether one agent (usually the caller)
// must be left out of the result.
type Exclusion struct {
	id     AgentID
	active bool
}

// IncludeSelf keeps every agent found in range.
var IncludeSelf = Exclusion{}

// Exclude leaves id out of the query result.
func Exclude(id AgentID) Exclusion {
	return Exclusion{id: id, active: true}
}

func (e Exclusion) skips(id AgentID) bool {
	return e.active && e.id == id
}

// Grid is a spatial hash over a Domain: the plane is cut in buckets and each
// bucket lists the agents located inside it.
//
// Grid is not safe for concurrent mutation. Concurrent NeighborsWithin calls
// are safe as long as nobody mutates the grid meanwhile, which is how the
// scheduler uses it during the parallel phase.
type Grid struct {
	domain     Domain
	bucketSize float64
	cellW      float64
	cellH      float64
	cols, rows int

	cells map[gridKey][]entry
	where map[AgentID]gridKey
}

// NewGrid builds an empty grid. Buckets tile the domain evenly, so the
// effective bucket edge is the requested size rounded up to a divisor of
// the domain edge; on a torus this keeps every bucket the same width
// across the seam.
func NewGrid(domain Domain, bucketSize float64) (*Grid, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if !validSize(bucketSize) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidBucketSize, bucketSize)
	}
	cols := max(1, int(math.Floor(domain.Width/bucketSize)))
	rows := max(1, int(math.Floor(domain.Height/bucketSize)))
	return &Grid{
		domain:     domain,
		bucketSize: bucketSize,
		cellW:      domain.Width / float64(cols),
		cellH:      domain.Height / float64(rows),
		cols:       cols,
		rows:       rows,
		cells:      make(map[gridKey][]entry),
		where:      make(map[AgentID]gridKey),
	}, nil
}

// Domain returns the domain the grid was built for.
func (g *Grid) Domain() Domain { return g.domain }

// Dims returns the number of bucket columns and rows.
func (g *Grid) Dims() (cols, rows int) { return g.cols, g.rows }

// Len returns the number of indexed agents.
func (g *Grid) Len() int { return len(g.where) }

// Reset empties the grid, keeping bucket capacity for the next fill.
func (g *Grid) Reset() {
	for k := range g.cells {
		g.cells[k] = g.cells[k][:0]
	}
	clear(g.where)
}

// Rebuild resets the grid and indexes positions[i] under AgentID(i).
func (g *Grid) Rebuild(positions []geometry.Vector2D) {
	g.Reset()
	for i, p := range positions {
		g.put(AgentID(i), p)
	}
}

// Insert indexes id at pos.
func (g *Grid) Insert(id AgentID, pos geometry.Vector2D) error {
	if _, ok := g.where[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateAgent, id)
	}
	g.put(id, pos)
	return nil
}

// Remove drops id from the grid. It reports whether id was present.
func (g *Grid) Remove(id AgentID) bool {
	key, ok := g.where[id]
	if !ok {
		return false
	}
	g.drop(key, id)
	delete(g.where, id)
	return true
}

// Relocate moves id from oldPos to newPos. oldPos must be the position the
// agent was indexed with (or at least fall in the same bucket).
func (g *Grid) Relocate(id AgentID, oldPos, newPos geometry.Vector2D) error {
	key, ok := g.where[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	if g.keyOf(oldPos) != key {
		return fmt.Errorf("%w: agent %d at %s", ErrStaleLocation, id, oldPos)
	}
	g.drop(key, id)
	g.put(id, newPos)
	return nil
}

// NeighborsWithin returns the ids of agents within radius of pos (inclusive),
// in ascending id order. An empty region yields an empty result, not an error.
func (g *Grid) NeighborsWithin(pos geometry.Vector2D, radius float64, excl Exclusion) ([]AgentID, error) {
	return g.NeighborsWithinInto(nil, pos, radius, excl)
}

// NeighborsWithinInto is NeighborsWithin appending into dst, so callers can
// reuse a scratch slice across queries.
func (g *Grid) NeighborsWithinInto(dst []AgentID, pos geometry.Vector2D, radius float64, excl Exclusion) ([]AgentID, error) {
	if radius < 0 || math.IsNaN(radius) {
		return dst, fmt.Errorf("%w: got %v", ErrNegativeRadius, radius)
	}
	if g.domain.Wrap {
		pos = g.domain.Transform(pos)
	}
	start := len(dst)
	radiusSq := radius * radius
	center := g.keyOf(pos)

	xs := g.span(center.x, radius/g.cellW, g.cols)
	ys := g.span(center.y, radius/g.cellH, g.rows)
	for _, gx := range xs {
		for _, gy := range ys {
			for _, e := range g.cells[gridKey{x: gx, y: gy}] {
				if excl.skips(e.id) {
					continue
				}
				if g.domain.DistanceSq(pos, e.pos) <= radiusSq {
					dst = append(dst, e.id)
				}
			}
		}
	}
	slices.Sort(dst[start:])
	return dst, nil
}

// span lists the bucket indices along one axis within reach cells of c.
// On a torus indices wrap and are never repeated. A reach of n or more covers
// every bucket, and is checked before the int conversion so huge or infinite
// radii cannot overflow.
func (g *Grid) span(c int, reach float64, n int) []int {
	if reach >= float64(n) {
		return seq(0, n-1)
	}
	r := int(math.Ceil(reach))
	if g.domain.Wrap {
		if 2*r+1 >= n {
			return seq(0, n-1)
		}
		out := make([]int, 0, 2*r+1)
		for i := c - r; i <= c+r; i++ {
			out = append(out, ((i%n)+n)%n)
		}
		return out
	}
	return seq(max(0, c-r), min(n-1, c+r))
}

func seq(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

func (g *Grid) put(id AgentID, pos geometry.Vector2D) {
	key := g.keyOf(pos)
	g.cells[key] = append(g.cells[key], entry{id: id, pos: pos})
	g.where[id] = key
}

func (g *Grid) drop(key gridKey, id AgentID) {
	list := g.cells[key]
	for i, e := range list {
		if e.id == id {
			g.cells[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// keyOf maps a position to its bucket. Positions on or past the far edge
// (bounded domains include x == Width) land in the last bucket.
func (g *Grid) keyOf(p geometry.Vector2D) gridKey {
	return gridKey{
		x: clampIndex(int(math.Floor(p.X/g.cellW)), g.cols),
		y: clampIndex(int(math.Floor(p.Y/g.cellH)), g.rows),
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
