package simulation

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/stream"
)

func testConfig(agents int) Config {
	cfg := *DefaultConfig()
	cfg.WorldWidth = 100
	cfg.WorldHeight = 100
	cfg.AgentCount = agents
	cfg.Workers = 4
	return cfg
}

func mustInit(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	s, err := Initialize(cfg, opts...)
	require.NoError(t, err)
	return s
}

// ruleFunc adapts a function to Rule.
type ruleFunc func(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error)

func (f ruleFunc) Update(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error) {
	return f(self, snap, rng)
}

// shiftRight moves every agent one unit along x.
var shiftRight = ruleFunc(func(self space.AgentID, snap flock.Snapshot, _ *rand.Rand) (flock.State, error) {
	v := geometry.Vector2D{X: 1}
	return flock.State{Position: snap.Domain().Transform(snap.Position(self).Add(v)), Direction: v}, nil
})

func TestInitialize_SeededPlacement(t *testing.T) {
	cfg := testConfig(200)
	a := mustInit(t, cfg)
	b := mustInit(t, cfg)

	assert.Equal(t, uint64(0), a.Step())
	assert.Equal(t, 200, a.Len())
	assert.Equal(t, a.Frame(), b.Frame(), "placement must depend only on the seed")

	for _, ag := range a.Frame().Agents() {
		assert.True(t, a.Domain().Contains(ag.Position), "agent %d placed at %v", ag.ID, ag.Position)
		assert.Equal(t, geometry.Zero, ag.Direction)
	}

	cfg.Seed++
	c := mustInit(t, cfg)
	assert.NotEqual(t, a.Frame().Positions, c.Frame().Positions)
}

func TestInitialize_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"zero width", func(c *Config) { c.WorldWidth = 0 }, space.ErrInvalidDomain},
		{"zero bucket", func(c *Config) { c.BucketSize = 0 }, space.ErrInvalidBucketSize},
		{"negative count", func(c *Config) { c.AgentCount = -3 }, ErrInvalidAgentCount},
		{"zero count", func(c *Config) { c.AgentCount = 0 }, ErrInvalidAgentCount},
		{"negative radius", func(c *Config) { c.InteractionRadius = -1 }, flock.ErrInvalidRadius},
		{"zero jump", func(c *Config) { c.Jump = 0 }, flock.ErrInvalidJump},
		{"negative workers", func(c *Config) { c.Workers = -1 }, ErrInvalidWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(10)
			tt.mutate(&cfg)
			s, err := Initialize(cfg)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInitialize_RejectsBadPlacement(t *testing.T) {
	cfg := testConfig(2)

	_, err := Initialize(cfg, WithPlacement([]geometry.Vector2D{{X: 1, Y: 1}}))
	assert.ErrorIs(t, err, ErrInvalidPlacement)

	_, err = Initialize(cfg, WithPlacement([]geometry.Vector2D{{X: 1, Y: 1}, {X: 100, Y: 5}}))
	assert.ErrorIs(t, err, ErrInvalidPlacement, "x = width is outside a torus")

	_, err = Initialize(cfg, WithAgents([]flock.State{
		{Position: geometry.Vector2D{X: 1, Y: 1}},
		{Position: geometry.Vector2D{X: 2, Y: 2}, Direction: geometry.Vector2D{X: math.NaN()}},
	}))
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}

func TestRunStep_DeterministicAcrossWorkerCounts(t *testing.T) {
	const steps = 25
	var frames []*Frame
	for _, workers := range []int{1, 3, 8, 64} {
		cfg := testConfig(500)
		cfg.WorldWidth, cfg.WorldHeight = 60, 60 // dense enough for many neighbors
		cfg.Workers = workers
		s := mustInit(t, cfg)
		require.NoError(t, s.Run(context.Background(), steps))
		frames = append(frames, s.Frame())
	}
	for i := 1; i < len(frames); i++ {
		require.Equal(t, frames[0], frames[i], "run %d differs from the single-worker run", i)
	}
	assert.Equal(t, uint64(steps), frames[0].Step)
}

func TestRunStep_SnapshotIsolation(t *testing.T) {
	a := geometry.Vector2D{X: 20, Y: 20}
	b := geometry.Vector2D{X: 30, Y: 40}

	var mu sync.Mutex
	seen := map[space.AgentID]geometry.Vector2D{}
	swap := ruleFunc(func(self space.AgentID, snap flock.Snapshot, _ *rand.Rand) (flock.State, error) {
		other := snap.Position(1 - self)
		mu.Lock()
		seen[self] = other
		mu.Unlock()
		return flock.State{Position: other}, nil
	})

	cfg := testConfig(2)
	cfg.Workers = 1 // sequential: agent 1 runs after agent 0 has written
	s := mustInit(t, cfg, WithPlacement([]geometry.Vector2D{a, b}), WithRule(swap))
	require.NoError(t, s.RunStep(context.Background()))

	assert.Equal(t, b, seen[0])
	assert.Equal(t, a, seen[1], "agent 1 must see agent 0 where it was at step start")

	p0, err := s.AgentPosition(0)
	require.NoError(t, err)
	p1, err := s.AgentPosition(1)
	require.NoError(t, err)
	assert.Equal(t, b, p0)
	assert.Equal(t, a, p1)
}

func TestRunStep_NeighborQueriesSeeStepStartPositions(t *testing.T) {
	// agent 0 jumps next to agent 2; agent 2 must not find it this step
	cfg := testConfig(3)
	cfg.Workers = 1
	start := []geometry.Vector2D{{X: 10, Y: 10}, {X: 50, Y: 50}, {X: 80, Y: 80}}

	var counts [3]int
	watch := ruleFunc(func(self space.AgentID, snap flock.Snapshot, _ *rand.Rand) (flock.State, error) {
		ids, err := snap.NeighborsWithin(snap.Position(self), 5, space.Exclude(self))
		if err != nil {
			return flock.State{}, err
		}
		counts[self] = len(ids)
		next := snap.Position(self)
		if self == 0 {
			next = geometry.Vector2D{X: 81, Y: 80}
		}
		return flock.State{Position: next}, nil
	})

	s := mustInit(t, cfg, WithPlacement(start), WithRule(watch))
	require.NoError(t, s.RunStep(context.Background()))
	assert.Equal(t, 0, counts[2])

	require.NoError(t, s.RunStep(context.Background()))
	assert.Equal(t, 1, counts[2], "the index is rebuilt at commit")
}

func TestRunStep_HugeRadiusSeesWholeFlock(t *testing.T) {
	cfg := testConfig(50)
	cfg.WorldWidth, cfg.WorldHeight = 20, 20
	cfg.InteractionRadius = 1e30
	require.NoError(t, cfg.Validate())

	counts := make([]int, cfg.AgentCount)
	count := ruleFunc(func(self space.AgentID, snap flock.Snapshot, _ *rand.Rand) (flock.State, error) {
		ids, err := snap.NeighborsWithin(snap.Position(self), cfg.InteractionRadius, space.IncludeSelf)
		if err != nil {
			return flock.State{}, err
		}
		counts[self] = len(ids)
		return flock.State{Position: snap.Position(self), Direction: snap.Direction(self)}, nil
	})

	s := mustInit(t, cfg, WithRule(count))
	require.NoError(t, s.RunStep(context.Background()))
	for id, n := range counts {
		assert.Equal(t, cfg.AgentCount, n, "agent %d", id)
	}
}

func TestCommit_Idempotent(t *testing.T) {
	s := mustInit(t, testConfig(50))
	require.NoError(t, s.RunStep(context.Background()))

	before := s.Frame()
	s.commit()
	s.commit()
	assert.Equal(t, before, s.Frame())
	assert.Equal(t, 50, s.grid.Len())
}

func TestRunStep_FailureAbortsWholeStep(t *testing.T) {
	boom := errors.New("boom")
	fail := false
	rule := ruleFunc(func(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error) {
		if fail && self == 3 {
			return flock.State{}, boom
		}
		return shiftRight(self, snap, rng)
	})

	cfg := testConfig(8)
	cfg.Workers = 2
	s := mustInit(t, cfg, WithRule(rule))
	require.NoError(t, s.RunStep(context.Background()))
	before := s.Frame()

	fail = true
	err := s.RunStep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepAborted)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "agent 3")

	assert.Equal(t, uint64(1), s.Step(), "an aborted step is not counted")
	assert.Equal(t, before, s.Frame(), "an aborted step leaves the snapshot untouched")
	for i := 0; i < s.Len(); i++ {
		assert.Equal(t, s.positions.Read(i), s.positions.Pending(i), "staged write of agent %d survived the abort", i)
	}

	fail = false
	require.NoError(t, s.RunStep(context.Background()))
	assert.Equal(t, uint64(2), s.Step())
}

func TestRunStep_PanicIsRecovered(t *testing.T) {
	rule := ruleFunc(func(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error) {
		if self == 5 {
			panic("corrupt agent")
		}
		return shiftRight(self, snap, rng)
	})
	s := mustInit(t, testConfig(10), WithRule(rule))
	before := s.Frame()

	err := s.RunStep(context.Background())
	assert.ErrorIs(t, err, ErrStepAborted)
	assert.ErrorIs(t, err, ErrRulePanic)
	assert.Equal(t, before, s.Frame())
	assert.Equal(t, uint64(0), s.Step())
}

func TestRunStep_CancelledContext(t *testing.T) {
	s := mustInit(t, testConfig(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.RunStep(ctx)
	assert.ErrorIs(t, err, ErrStepAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), s.Step())

	assert.ErrorIs(t, s.Run(ctx, 3), context.Canceled)
	assert.Equal(t, uint64(0), s.Step())
}

func TestRun_NegativeSteps(t *testing.T) {
	s := mustInit(t, testConfig(1))
	assert.ErrorIs(t, s.Run(context.Background(), -1), ErrInvalidSteps)
}

func TestAccessors_UnknownAgent(t *testing.T) {
	s := mustInit(t, testConfig(3))
	_, err := s.AgentPosition(3)
	assert.ErrorIs(t, err, space.ErrUnknownAgent)
	_, err = s.AgentDirection(99)
	assert.ErrorIs(t, err, space.ErrUnknownAgent)
}

func TestAccessors_ConcurrentWithSteps(t *testing.T) {
	s := mustInit(t, testConfig(200))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			f := s.Frame()
			for i := range f.Positions {
				if !s.Domain().Contains(f.Positions[i]) {
					t.Errorf("step %d: agent %d outside domain at %v", f.Step, i, f.Positions[i])
					return
				}
			}
			if _, err := s.AgentPosition(space.AgentID(s.Len() - 1)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	require.NoError(t, s.Run(context.Background(), 30))
	cancel()
	wg.Wait()
}

func TestOnCommit_ReceivesEachFrame(t *testing.T) {
	s := mustInit(t, testConfig(5))
	var got []uint64
	s.OnCommit(func(f *Frame) {
		got = append(got, f.Step)
		assert.Equal(t, 5, f.Len())
	})
	require.NoError(t, s.Run(context.Background(), 3))
	assert.Equal(t, []uint64{1, 2, 3}, got)
}

func TestSetWeights(t *testing.T) {
	s := mustInit(t, testConfig(20))
	w := flock.Weights{Cohesion: 0, Avoidance: 2, Consistency: 0, Randomness: 0, Momentum: 0.5}
	require.NoError(t, s.SetWeights(w))
	assert.Equal(t, w, s.Weights())

	bad := w
	bad.Momentum = math.Inf(1)
	assert.ErrorIs(t, s.SetWeights(bad), flock.ErrInvalidWeight)
	assert.Equal(t, w, s.Weights(), "a rejected update keeps the previous weights")

	custom := mustInit(t, testConfig(2), WithRule(shiftRight))
	assert.ErrorIs(t, custom.SetWeights(w), ErrCustomRule)
}

func TestSetWeights_ChangesTheNextStep(t *testing.T) {
	cfg := testConfig(100)
	a := mustInit(t, cfg)
	b := mustInit(t, cfg)

	still := flock.Weights{}
	require.NoError(t, b.SetWeights(still))
	require.NoError(t, a.RunStep(context.Background()))
	require.NoError(t, b.RunStep(context.Background()))

	assert.NotEqual(t, a.Frame().Positions, b.Frame().Positions)
	initial := mustInit(t, cfg).Frame().Positions
	assert.Equal(t, initial, b.Frame().Positions, "all-zero weights freeze the flock")
}

func TestRunStep_BoidsRule(t *testing.T) {
	cfg := testConfig(200)
	cfg.Rule = RuleBoids
	var frames []*Frame
	for _, workers := range []int{1, 7} {
		cfg.Workers = workers
		s := mustInit(t, cfg)
		require.NoError(t, s.Run(context.Background(), 10))
		frames = append(frames, s.Frame())

		// boids directions are velocities, weights do not apply
		assert.ErrorIs(t, s.SetWeights(flock.DefaultWeights()), ErrCustomRule)
	}
	require.Equal(t, frames[0], frames[1])

	d := frames[0]
	for i := range d.Len() {
		a := d.Agent(i)
		assert.True(t, cfg.Domain().Contains(a.Position), "agent %d left the world at %v", i, a.Position)
		assert.LessOrEqual(t, a.Direction.Len(), cfg.Boids.MaxSpeed+1e-9)
		assert.Greater(t, a.Direction.Len(), 0.0)
	}
}

// expectedState applies the flocking update by hand. offsets are self minus
// neighbor, already folded across the seam, in ascending neighbor id order.
func expectedState(pos, dir geometry.Vector2D, offsets, neighborDirs []geometry.Vector2D, rng *rand.Rand) flock.State {
	n := float64(len(offsets))
	var ax, ay, cx, cy, kx, ky float64
	for i, d := range offsets {
		sq := d.X*d.X + d.Y*d.Y
		den := (sq + 1) * (sq + 1)
		ax += d.X / den
		ay += d.Y / den
		cx += d.X
		cy += d.Y
		kx += neighborDirs[i].X
		ky += neighborDirs[i].Y
	}
	ax, ay = 400*(ax/n/n), 400*(ay/n/n)
	cx, cy = cx/n/-10, cy/n/-10
	kx, ky = kx/n/n, ky/n/n
	r := flock.Jitter(rng, 0.05)

	vx := 0.8*cx + 1.0*ax + 0.7*kx + 1.1*r.X + 1.0*dir.X
	vy := 0.8*cy + 1.0*ay + 0.7*ky + 1.1*r.Y + 1.0*dir.Y
	if l := math.Hypot(vx, vy); l > 0.7 {
		vx, vy = vx*0.7/l, vy*0.7/l
	}
	wrap := func(x float64) float64 { return math.Mod(math.Mod(x, 100)+100, 100) }
	return flock.State{
		Position:  geometry.Vector2D{X: wrap(pos.X + vx), Y: wrap(pos.Y + vy)},
		Direction: geometry.Vector2D{X: vx, Y: vy},
	}
}

func TestRunStep_ThreeAgentScenario(t *testing.T) {
	cfg := testConfig(3)
	cfg.Seed = 1337
	cfg.InteractionRadius = 10
	cfg.Jump = 0.7
	cfg.Weights = flock.Weights{Cohesion: 0.8, Avoidance: 1.0, Consistency: 0.7, Randomness: 1.1, Momentum: 1.0}

	// all three are mutual neighbors, C only through the x = 0 seam
	agents := []flock.State{
		{Position: geometry.Vector2D{X: 1, Y: 50}, Direction: geometry.Vector2D{X: 0.1, Y: 0}},
		{Position: geometry.Vector2D{X: 4, Y: 54}, Direction: geometry.Vector2D{X: 0, Y: 0.2}},
		{Position: geometry.Vector2D{X: 97, Y: 50}, Direction: geometry.Vector2D{X: -0.1, Y: 0.1}},
	}
	dirs := func(ids ...int) []geometry.Vector2D {
		out := make([]geometry.Vector2D, len(ids))
		for i, id := range ids {
			out[i] = agents[id].Direction
		}
		return out
	}
	want := []flock.State{
		expectedState(agents[0].Position, agents[0].Direction,
			[]geometry.Vector2D{{X: -3, Y: -4}, {X: 4, Y: 0}}, dirs(1, 2), stream.For(1337, 0, 0)),
		expectedState(agents[1].Position, agents[1].Direction,
			[]geometry.Vector2D{{X: 3, Y: 4}, {X: 7, Y: 4}}, dirs(0, 2), stream.For(1337, 1, 0)),
		expectedState(agents[2].Position, agents[2].Direction,
			[]geometry.Vector2D{{X: -4, Y: 0}, {X: -7, Y: -4}}, dirs(0, 1), stream.For(1337, 2, 0)),
	}

	s := mustInit(t, cfg, WithAgents(agents))
	require.NoError(t, s.RunStep(context.Background()))
	require.Equal(t, uint64(1), s.Step())

	for i, w := range want {
		id := space.AgentID(i)
		pos, err := s.AgentPosition(id)
		require.NoError(t, err)
		dir, err := s.AgentDirection(id)
		require.NoError(t, err)

		assert.True(t, pos.EqWithin(w.Position, 1e-9), "agent %d position %v; want %v", i, pos, w.Position)
		assert.True(t, dir.EqWithin(w.Direction, 1e-9), "agent %d direction %v; want %v", i, dir, w.Direction)
		assert.LessOrEqual(t, dir.Len(), 0.7+1e-12)
	}
}

func BenchmarkRunStep(b *testing.B) {
	cfg := testConfig(5000)
	cfg.WorldWidth, cfg.WorldHeight = 400, 400
	cfg.Workers = 0
	s, err := Initialize(cfg)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.RunStep(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
