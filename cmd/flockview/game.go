package main

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tochemey/goakt/v3/actor"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/simulation"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/ui"
)

const (
	panelWidth = 280
	// a tick with no frame back after this long is assumed lost
	tickTimeout = time.Second
)

var whiteImage = ebiten.NewImage(3, 3)

func init() {
	whiteImage.Fill(color.RGBA{R: 100, G: 200, B: 255, A: 255})
}

type Game struct {
	ctx      context.Context
	worldPID *actor.PID
	frameCh  chan *simulation.Frame
	last     *simulation.Frame
	cfg      *simulation.Config
	scale    float64

	// tick bookkeeping: one step in flight at a time
	waiting  bool
	tickedAt time.Time

	panel        *ui.UIPanel
	cohesion     *ui.Slider
	avoidance    *ui.Slider
	consistency  *ui.Slider
	randomness   *ui.Slider
	momentum     *ui.Slider
	sliders      []*ui.Slider
	paused       *ui.Checkbox
	showRadius   *ui.Checkbox
	stepRequests int

	// Timing instrumentation
	updateAvg float64 // Rolling average in ms
	drawAvg   float64 // Rolling average in ms
}

// NewGame spawns the world actor around sched and builds the control panel.
func NewGame(ctx context.Context, cfg *simulation.Config, system actor.ActorSystem, sched *simulation.Scheduler, scale float64) (*Game, error) {
	frameCh := make(chan *simulation.Frame, 10)
	worldPID, err := system.Spawn(ctx, "world", simulation.NewWorldActor(sched, frameCh))
	if err != nil {
		return nil, fmt.Errorf("failed to spawn world: %w", err)
	}

	g := &Game{
		ctx:      ctx,
		worldPID: worldPID,
		frameCh:  frameCh,
		last:     sched.Frame(),
		cfg:      cfg,
		scale:    scale,
	}

	_, h := g.Layout(0, 0)
	g.panel = ui.NewUIPanel("Flocking", 10, 10, panelWidth-20, float64(h)-20)

	// weights only steer the flockers rule
	if cfg.Rule != simulation.RuleBoids {
		w := cfg.Weights
		g.panel.AddSection("Force Weights")
		g.cohesion = g.panel.AddSlider("Cohesion", 0, 3, w.Cohesion)
		g.avoidance = g.panel.AddSlider("Avoidance", 0, 3, w.Avoidance)
		g.consistency = g.panel.AddSlider("Consistency", 0, 3, w.Consistency)
		g.randomness = g.panel.AddSlider("Randomness", 0, 3, w.Randomness)
		g.momentum = g.panel.AddSlider("Momentum", 0, 3, w.Momentum)
		g.sliders = []*ui.Slider{g.cohesion, g.avoidance, g.consistency, g.randomness, g.momentum}
		g.panel.AddButton("Reset weights", func() { g.setWeights(flock.DefaultWeights()) })
	}

	g.panel.AddSection("Playback")
	g.paused = g.panel.AddCheckbox("Paused", false)
	g.panel.AddButton("Single step", func() { g.stepRequests++ })

	g.panel.AddSection("Visualization")
	g.showRadius = g.panel.AddCheckbox("Show interaction radius", false)

	return g, nil
}

func (g *Game) weights() flock.Weights {
	return flock.Weights{
		Cohesion:    g.cohesion.Value,
		Avoidance:   g.avoidance.Value,
		Consistency: g.consistency.Value,
		Randomness:  g.randomness.Value,
		Momentum:    g.momentum.Value,
	}
}

func (g *Game) setWeights(w flock.Weights) {
	g.cohesion.Set(w.Cohesion)
	g.avoidance.Set(w.Avoidance)
	g.consistency.Set(w.Consistency)
	g.randomness.Set(w.Randomness)
	g.momentum.Set(w.Momentum)
}

func (g *Game) Update() error {
	start := time.Now()
	defer func() {
		g.updateAvg = g.updateAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	g.panel.Update()

	// Retrieve latest frames (non-blocking)
	for drained := false; !drained; {
		select {
		case f := <-g.frameCh:
			if f.Step > g.last.Step {
				g.waiting = false
			}
			g.last = f
		default:
			drained = true
		}
	}

	// Sliders report a change once; every one must be polled.
	changed := false
	for _, s := range g.sliders {
		if s.Changed() {
			changed = true
		}
	}
	if changed {
		if err := simulation.UpdateWeights(g.ctx, g.worldPID, g.weights()); err != nil {
			return err
		}
	}

	if g.waiting && time.Since(g.tickedAt) > tickTimeout {
		g.waiting = false
	}
	if g.waiting {
		return nil
	}
	if !g.paused.Value || g.stepRequests > 0 {
		if g.stepRequests > 0 {
			g.stepRequests--
		}
		if err := simulation.Tick(g.ctx, g.worldPID); err != nil {
			return err
		}
		g.waiting = true
		g.tickedAt = time.Now()
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()
	defer func() {
		g.drawAvg = g.drawAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	screen.Fill(color.RGBA{R: 10, G: 10, B: 30, A: 255})

	for _, a := range g.last.Agents() {
		g.drawAgent(screen, a.Position, a.Direction)
	}
	if g.showRadius.Value {
		g.drawRadius(screen)
	}

	g.panel.Draw(screen)

	w, _ := g.Layout(0, 0)
	msg := fmt.Sprintf("Step: %d\nAgents: %d\nFPS: %.2f\nTPS: %.2f\n\nUpdate: %.2fms\nDraw:   %.2fms",
		g.last.Step,
		g.last.Len(),
		ebiten.ActualFPS(),
		ebiten.ActualTPS(),
		g.updateAvg,
		g.drawAvg)
	ebitenutil.DebugPrintAt(screen, msg, w-130, 10)
}

// toScreen maps world coordinates into the area right of the panel.
func (g *Game) toScreen(p geometry.Vector2D) (float64, float64) {
	return panelWidth + p.X*g.scale, p.Y * g.scale
}

// drawAgent draws a triangle pointing along dir.
func (g *Game) drawAgent(screen *ebiten.Image, pos, dir geometry.Vector2D) {
	angle := dir.Angle()
	x, y := g.toScreen(pos)

	tipX := x + math.Cos(angle)*6
	tipY := y + math.Sin(angle)*6
	rightX := x + math.Cos(angle+2.5)*5
	rightY := y + math.Sin(angle+2.5)*5
	leftX := x + math.Cos(angle-2.5)*5
	leftY := y + math.Sin(angle-2.5)*5

	vertices := []ebiten.Vertex{
		{
			DstX: float32(tipX),
			DstY: float32(tipY),
			SrcX: 1, SrcY: 1,
			ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
		},
		{
			DstX: float32(rightX),
			DstY: float32(rightY),
			SrcX: 1, SrcY: 1,
			ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
		},
		{
			DstX: float32(leftX),
			DstY: float32(leftY),
			SrcX: 1, SrcY: 1,
			ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
		},
	}
	indices := []uint16{0, 1, 2}

	screen.DrawTriangles(vertices, indices, whiteImage, &ebiten.DrawTrianglesOptions{})
}

// drawRadius outlines the interaction radius around agent 0.
func (g *Game) drawRadius(screen *ebiten.Image) {
	if g.last.Len() == 0 {
		return
	}
	x, y := g.toScreen(g.last.Positions[0])
	r := g.cfg.InteractionRadius
	if g.cfg.Rule == simulation.RuleBoids {
		r = g.cfg.Boids.VisualRange
	}
	vector.StrokeCircle(screen, float32(x), float32(y), float32(r*g.scale), 1,
		color.RGBA{R: 255, G: 200, B: 50, A: 160}, true)
}

func (g *Game) Layout(_, _ int) (int, int) {
	w := panelWidth + int(math.Ceil(g.cfg.WorldWidth*g.scale))
	h := max(600, int(math.Ceil(g.cfg.WorldHeight*g.scale)))
	return w, h
}
