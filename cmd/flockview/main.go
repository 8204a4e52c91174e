package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"
	"github.com/tochemey/goakt/v3/actor"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/simulation"
)

func main() {
	cmd := &cobra.Command{
		Use:   "flockview",
		Short: "Watch the flocking simulation live",
		Long: `flockview runs the simulation behind an actor and draws every committed
step. The panel on the left changes the force weights between steps.`,
		SilenceUsage: true,
		RunE:         runViewer,
	}
	cmd.Flags().StringP("config", "c", "", "Configuration file (JSON or YAML)")
	cmd.Flags().Int("agents", 0, "Number of agents (overrides the config)")
	cmd.Flags().String("rule", "", "Update rule: flockers or boids (overrides the config)")
	cmd.Flags().Float64("scale", 3, "Screen pixels per world unit")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runViewer(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg := simulation.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = simulation.LoadConfig(path); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("agents") {
		cfg.AgentCount, _ = cmd.Flags().GetInt("agents")
	}
	if cmd.Flags().Changed("rule") {
		cfg.Rule, _ = cmd.Flags().GetString("rule")
	}
	scale, _ := cmd.Flags().GetFloat64("scale")
	if scale <= 0 {
		return fmt.Errorf("scale must be > 0, got %v", scale)
	}

	logger, err := simulation.NewLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	sched, err := simulation.Initialize(*cfg, simulation.WithLogger(logger))
	if err != nil {
		return err
	}

	system, err := actor.NewActorSystem("FlockView",
		actor.WithLogger(logger),
		actor.WithActorInitMaxRetries(3))
	if err != nil {
		return fmt.Errorf("failed to create actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return fmt.Errorf("failed to start actor system: %w", err)
	}
	defer system.Stop(ctx)

	game, err := NewGame(ctx, cfg, system, sched, scale)
	if err != nil {
		return err
	}
	w, h := game.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(fmt.Sprintf("Flock: %d agents, seed %d", cfg.AgentCount, cfg.Seed))
	return ebiten.RunGame(game)
}
