package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tochemey/goakt/v3/actor"
	"github.com/tochemey/goakt/v3/goaktpb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
)

var (
	ErrUnknownWeight    = errors.New("unknown weight")
	ErrMalformedWeights = errors.New("weights must be numbers")
	ErrUnexpectedReply  = errors.New("unexpected reply from world")
)

// WorldActor serializes access to a Scheduler behind a mailbox, so a UI loop
// and a control plane can drive the same flock without sharing locks.
//
// Messages:
//
//	*emptypb.Empty            advance one step and publish the frame
//	*wrapperspb.UInt64Value   advance N steps; replies with the step counter
//	                          or a *wrapperspb.StringValue holding the error
//	*structpb.Struct          replace some weights, applied from the next step
type WorldActor struct {
	sched   *Scheduler
	frameCh chan<- *Frame

	// --- Benchmark Stats ---
	stepCount   int
	lastLogTime time.Time
}

// NewWorldActor wraps sched. Frames are offered to frameCh without blocking;
// frameCh may be nil.
func NewWorldActor(sched *Scheduler, frameCh chan<- *Frame) *WorldActor {
	return &WorldActor{
		sched:       sched,
		frameCh:     frameCh,
		lastLogTime: time.Now(),
	}
}

func (w *WorldActor) PreStart(ctx *actor.Context) error {
	ctx.ActorSystem().Logger().Infof("world is starting with %d agents", w.sched.Len())
	return nil
}

func (w *WorldActor) Receive(ctx *actor.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *goaktpb.PostStart:
		ctx.Logger().Info("world started")
		w.pushFrame()

	case *emptypb.Empty:
		if err := w.sched.RunStep(ctx.Context()); err != nil {
			ctx.Logger().Errorf("tick failed: %v", err)
			return
		}
		w.stepCount++
		w.logBenchmarks(ctx)
		w.pushFrame()

	case *wrapperspb.UInt64Value:
		if err := w.sched.Run(ctx.Context(), int(msg.GetValue())); err != nil {
			ctx.Response(wrapperspb.String(err.Error()))
			return
		}
		w.stepCount += int(msg.GetValue())
		w.pushFrame()
		ctx.Response(wrapperspb.UInt64(w.sched.Step()))

	case *structpb.Struct:
		weights, err := ApplyWeights(w.sched.Weights(), msg)
		if err == nil {
			err = w.sched.SetWeights(weights)
		}
		if err != nil {
			ctx.Logger().Warnf("weights update rejected: %v", err)
		}

	default:
		ctx.Unhandled()
	}
}

func (w *WorldActor) PostStop(ctx *actor.Context) error {
	ctx.ActorSystem().Logger().Infof("world stopped at step %d", w.sched.Step())
	return nil
}

func (w *WorldActor) logBenchmarks(ctx *actor.ReceiveContext) {
	if time.Since(w.lastLogTime) >= time.Second {
		ctx.Logger().Infof("STEP RATE: %d/sec | step %d | agents %d",
			w.stepCount, w.sched.Step(), w.sched.Len())
		w.stepCount = 0
		w.lastLogTime = time.Now()
	}
}

func (w *WorldActor) pushFrame() {
	if w.frameCh == nil {
		return
	}
	select {
	case w.frameCh <- w.sched.Frame():
	default:
		// consumer busy, skip frame
	}
}

// Tick asks the world behind pid to advance one step.
func Tick(ctx context.Context, pid *actor.PID) error {
	return actor.Tell(ctx, pid, &emptypb.Empty{})
}

// Advance asks the world behind pid to run n steps and returns the committed
// step counter once they are done.
func Advance(ctx context.Context, pid *actor.PID, n uint64, timeout time.Duration) (uint64, error) {
	reply, err := actor.Ask(ctx, pid, wrapperspb.UInt64(n), timeout)
	if err != nil {
		return 0, err
	}
	return stepFromReply(reply)
}

func stepFromReply(reply proto.Message) (uint64, error) {
	switch r := reply.(type) {
	case *wrapperspb.UInt64Value:
		return r.GetValue(), nil
	case *wrapperspb.StringValue:
		return 0, fmt.Errorf("%w: %s", ErrStepAborted, r.GetValue())
	}
	return 0, fmt.Errorf("%w: %T", ErrUnexpectedReply, reply)
}

// UpdateWeights sends w to the world behind pid.
func UpdateWeights(ctx context.Context, pid *actor.PID, w flock.Weights) error {
	msg, err := WeightsToStruct(w)
	if err != nil {
		return err
	}
	return actor.Tell(ctx, pid, msg)
}

// WeightsToStruct encodes w with the same keys as the config file.
func WeightsToStruct(w flock.Weights) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"cohesion":    w.Cohesion,
		"avoidance":   w.Avoidance,
		"consistency": w.Consistency,
		"randomness":  w.Randomness,
		"momentum":    w.Momentum,
	})
}

// ApplyWeights overrides the fields of base present in s. Unknown keys and
// non-number values are rejected.
func ApplyWeights(base flock.Weights, s *structpb.Struct) (flock.Weights, error) {
	fields := map[string]*float64{
		"cohesion":    &base.Cohesion,
		"avoidance":   &base.Avoidance,
		"consistency": &base.Consistency,
		"randomness":  &base.Randomness,
		"momentum":    &base.Momentum,
	}
	for k, v := range s.GetFields() {
		dst, ok := fields[k]
		if !ok {
			return flock.Weights{}, fmt.Errorf("%w: %q", ErrUnknownWeight, k)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return flock.Weights{}, fmt.Errorf("%w: %s", ErrMalformedWeights, k)
		}
		*dst = n.NumberValue
	}
	return base, base.Validate()
}
