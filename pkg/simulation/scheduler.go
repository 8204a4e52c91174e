// Package simulation drives a flock through synchronous steps: every agent
// reads the state committed at the end of the previous step, stages its own
// next state, and the whole population is published at once after a barrier.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	golog "github.com/tochemey/goakt/v3/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/buffer"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/stream"
)

var (
	ErrStepAborted      = errors.New("step aborted")
	ErrRulePanic        = errors.New("update rule panicked")
	ErrInvalidPlacement = errors.New("invalid initial placement")
	ErrCustomRule       = errors.New("weights only apply to the built-in flockers rule")
)

// Rule computes one agent's next state from the committed snapshot. It must
// only read through snap and only draw randomness from rng. *flock.Rule is
// the default implementation.
type Rule interface {
	Update(self space.AgentID, snap flock.Snapshot, rng *rand.Rand) (flock.State, error)
}

type options struct {
	logger    golog.Logger
	rule      Rule
	positions []geometry.Vector2D
	agents    []flock.State
}

// Option customizes Initialize.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l golog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRule replaces the flocking rule built from the config.
func WithRule(r Rule) Option {
	return func(o *options) { o.rule = r }
}

// WithPlacement places agent i at positions[i] with a zero direction instead
// of drawing positions from the seed.
func WithPlacement(positions []geometry.Vector2D) Option {
	return func(o *options) { o.positions = positions }
}

// WithAgents sets the full initial state of every agent.
func WithAgents(agents []flock.State) Option {
	return func(o *options) { o.agents = agents }
}

// Scheduler owns the population and runs the step protocol.
type Scheduler struct {
	cfg       Config
	domain    space.Domain
	params    flock.Params
	rule      Rule
	ownedRule bool
	workers   int
	logger    golog.Logger

	// stepMu serializes RunStep, SetWeights and OnCommit.
	stepMu sync.Mutex
	// mu guards the committed snapshot against accessor reads during commit.
	mu sync.RWMutex

	grid       *space.Grid
	positions  *buffer.Buffer[geometry.Vector2D]
	directions *buffer.Buffer[geometry.Vector2D]
	step       uint64
	observers  []func(*Frame)
}

// Initialize validates cfg, places the population and commits it, so that
// step 0 starts from a complete snapshot and a built spatial index.
func Initialize(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := options{logger: golog.DiscardLogger}
	for _, opt := range opts {
		opt(&o)
	}

	grid, err := space.NewGrid(cfg.Domain(), cfg.BucketSize)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Scheduler{
		cfg:        cfg,
		domain:     cfg.Domain(),
		params:     cfg.Params(),
		rule:       o.rule,
		workers:    cfg.Workers,
		logger:     o.logger,
		grid:       grid,
		positions:  buffer.New[geometry.Vector2D](cfg.AgentCount),
		directions: buffer.New[geometry.Vector2D](cfg.AgentCount),
	}
	if s.workers == 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.rule == nil {
		if s.rule, err = s.configuredRule(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if err := s.place(o); err != nil {
		return nil, err
	}
	s.commit()

	agentsGauge.Set(float64(cfg.AgentCount))
	committedStep.Set(0)
	cols, rows := grid.Dims()
	s.logger.Infof("flock initialized: %d agents in %.0fx%.0f (wrap=%t), seed %d, %d workers, %dx%d buckets",
		cfg.AgentCount, cfg.WorldWidth, cfg.WorldHeight, cfg.Wraparound, cfg.Seed, s.workers, cols, rows)
	return s, nil
}

func (s *Scheduler) configuredRule() (Rule, error) {
	if s.cfg.Rule == RuleBoids {
		b, err := behavior.New(s.cfg.Boids)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	r, err := flock.NewRule(s.params)
	if err != nil {
		return nil, err
	}
	s.ownedRule = true
	return r, nil
}

// place stages the initial state in the write slots.
func (s *Scheduler) place(o options) error {
	n := s.cfg.AgentCount
	switch {
	case o.agents != nil:
		if len(o.agents) != n {
			return fmt.Errorf("%w: %d agents for agentCount %d", ErrInvalidPlacement, len(o.agents), n)
		}
		for i, a := range o.agents {
			if err := s.checkPlacement(i, a.Position); err != nil {
				return err
			}
			if !a.Direction.IsFinite() {
				return fmt.Errorf("%w: agent %d direction %v", ErrInvalidPlacement, i, a.Direction)
			}
			s.positions.Write(i, a.Position)
			s.directions.Write(i, a.Direction)
		}
	case o.positions != nil:
		if len(o.positions) != n {
			return fmt.Errorf("%w: %d positions for agentCount %d", ErrInvalidPlacement, len(o.positions), n)
		}
		for i, p := range o.positions {
			if err := s.checkPlacement(i, p); err != nil {
				return err
			}
			s.positions.Write(i, p)
		}
	default:
		for i := 0; i < n; i++ {
			rng := stream.Placement(s.cfg.Seed, uint32(i))
			p := geometry.Vector2D{X: rng.Float64() * s.domain.Width, Y: rng.Float64() * s.domain.Height}
			s.positions.Write(i, p)
		}
	}
	return nil
}

func (s *Scheduler) checkPlacement(i int, p geometry.Vector2D) error {
	if !p.IsFinite() || !s.domain.Contains(p) {
		return fmt.Errorf("%w: agent %d at %v is outside the %vx%v domain",
			ErrInvalidPlacement, i, p, s.domain.Width, s.domain.Height)
	}
	return nil
}

// commit publishes the staged state and rebuilds the spatial index from it.
// Callers hold stepMu, and mu when accessors may be running.
func (s *Scheduler) commit() {
	s.positions.Commit()
	s.directions.Commit()
	s.grid.Rebuild(s.positions.View())
}

// RunStep advances the population by one step: every agent is updated in
// parallel against the committed snapshot, the goroutines are joined, and only
// then is the new state published. If any agent fails, the whole step is
// discarded: the committed snapshot and the step counter are left as they
// were and the returned error wraps ErrStepAborted.
func (s *Scheduler) RunStep(ctx context.Context) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	step := s.step
	n := s.positions.Len()
	ctx, span := tracer.Start(ctx, "flock.Step",
		trace.WithAttributes(
			attribute.Int64("flock.step", int64(step)),
			attribute.Int("flock.agents", n),
			attribute.Int("flock.workers", s.workers),
		),
	)
	defer span.End()
	start := time.Now()

	if err := s.update(ctx, step); err != nil {
		s.positions.Rollback()
		s.directions.Rollback()
		stepsTotal.WithLabelValues(resultAborted).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Errorf("step %d aborted: %v", step, err)
		return fmt.Errorf("%w: step %d: %w", ErrStepAborted, step, err)
	}

	s.mu.Lock()
	s.commit()
	s.step++
	s.mu.Unlock()

	elapsed := time.Since(start)
	stepsTotal.WithLabelValues(resultCommitted).Inc()
	stepDuration.Observe(elapsed.Seconds())
	committedStep.Set(float64(s.step))
	span.SetStatus(codes.Ok, "")
	s.logger.Debugf("step %d committed in %s", step, elapsed)

	if len(s.observers) > 0 {
		f := s.frame()
		for _, fn := range s.observers {
			fn(f)
		}
	}
	return nil
}

// update is the parallel phase. Agents are cut in contiguous chunks, one
// goroutine per chunk, at most s.workers at a time. The first failure cancels
// the remaining chunks; Wait returns only once every goroutine has exited.
func (s *Scheduler) update(ctx context.Context, step uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := s.positions.Len()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	chunk := (n + s.workers - 1) / s.workers
	view := committedView{s}
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := s.updateAgent(view, step, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) updateAgent(view flock.Snapshot, step uint64, i int) (err error) {
	id := space.AgentID(i)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %d: %w: %v", id, ErrRulePanic, r)
		}
	}()

	next, err := s.rule.Update(id, view, stream.For(s.cfg.Seed, uint32(id), step))
	if err != nil {
		return fmt.Errorf("agent %d: %w", id, err)
	}
	s.positions.Write(i, next.Position)
	s.directions.Write(i, next.Direction)
	return nil
}

// Run executes steps consecutive steps, stopping at the first failure or
// when ctx is done between two steps.
func (s *Scheduler) Run(ctx context.Context, steps int) error {
	if steps < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSteps, steps)
	}
	start := time.Now()
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.RunStep(ctx); err != nil {
			return err
		}
	}
	if steps > 0 {
		elapsed := time.Since(start)
		s.logger.Infof("ran %d steps in %s (%.1f steps/sec), now at step %d",
			steps, elapsed, float64(steps)/elapsed.Seconds(), s.Step())
	}
	return nil
}

// SetWeights changes the force weights of the built-in rule. It waits for a
// running step to finish, so the change applies from the next step on.
func (s *Scheduler) SetWeights(w flock.Weights) error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if !s.ownedRule {
		return ErrCustomRule
	}
	p := s.params
	p.Weights = w
	r, err := flock.NewRule(p)
	if err != nil {
		return err
	}
	s.params = p
	s.rule = r
	s.logger.Infof("weights updated before step %d: %+v", s.step, w)
	return nil
}

// Weights returns the force weights currently in use.
func (s *Scheduler) Weights() flock.Weights {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	return s.params.Weights
}

// OnCommit registers fn to be called with a fresh Frame after every
// committed step, on the goroutine that ran the step.
func (s *Scheduler) OnCommit(fn func(*Frame)) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.observers = append(s.observers, fn)
}

// AgentPosition returns the committed position of id.
func (s *Scheduler) AgentPosition(id space.AgentID) (geometry.Vector2D, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.positions.Len() {
		return geometry.Vector2D{}, fmt.Errorf("%w: %d", space.ErrUnknownAgent, id)
	}
	return s.positions.Read(int(id)), nil
}

// AgentDirection returns the committed direction of id.
func (s *Scheduler) AgentDirection(id space.AgentID) (geometry.Vector2D, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= s.directions.Len() {
		return geometry.Vector2D{}, fmt.Errorf("%w: %d", space.ErrUnknownAgent, id)
	}
	return s.directions.Read(int(id)), nil
}

// Step returns the number of committed steps.
func (s *Scheduler) Step() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Len returns the population size.
func (s *Scheduler) Len() int { return s.positions.Len() }

// Domain returns the world geometry.
func (s *Scheduler) Domain() space.Domain { return s.domain }

// Config returns the configuration the scheduler was initialized with.
func (s *Scheduler) Config() Config { return s.cfg }

// Frame returns a copy of the committed snapshot.
func (s *Scheduler) Frame() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame()
}

func (s *Scheduler) frame() *Frame {
	return &Frame{
		Step:       s.step,
		Positions:  s.positions.Snapshot(),
		Directions: s.directions.Snapshot(),
	}
}

// committedView is the flock.Snapshot handed to the rule: read slots and the
// grid built at the last commit. Neither changes during the parallel phase.
type committedView struct {
	s *Scheduler
}

func (v committedView) Position(id space.AgentID) geometry.Vector2D {
	return v.s.positions.Read(int(id))
}

func (v committedView) Direction(id space.AgentID) geometry.Vector2D {
	return v.s.directions.Read(int(id))
}

func (v committedView) NeighborsWithin(pos geometry.Vector2D, radius float64, excl space.Exclusion) ([]space.AgentID, error) {
	return v.s.grid.NeighborsWithin(pos, radius, excl)
}

func (v committedView) Domain() space.Domain { return v.s.domain }
