package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	golog "github.com/tochemey/goakt/v3/log"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/simulation"
)

type runSummary struct {
	Steps    uint64            `json:"steps"`
	Agents   int               `json:"agents"`
	Seed     uint64            `json:"seed"`
	Workers  int               `json:"workers"`
	Elapsed  string            `json:"elapsed"`
	Centroid geometry.Vector2D `json:"centroid"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation for a number of steps",
		Long: `Run the simulation headless and print a summary of the final state.

Flags override the matching configuration fields.

Examples:
  flocksim run --agents 5000 --steps 1000
  flocksim run --config flock.yaml --workers 1 --out final.json
  flocksim run --metrics-addr :9090 --steps 100000`,
		RunE: runSimulation,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (JSON or YAML)")
	cmd.Flags().Int("steps", 0, "Number of steps to run")
	cmd.Flags().Uint64("seed", 0, "Master seed")
	cmd.Flags().Int("workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	cmd.Flags().Int("agents", 0, "Number of agents")
	cmd.Flags().String("rule", "", "Update rule: flockers or boids")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().Int("progress", 0, "Log progress every N steps (0 = never)")
	cmd.Flags().String("out", "", "Write the final frame as JSON to this file")

	return cmd
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := simulation.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	sched, err := simulation.Initialize(*cfg, simulation.WithLogger(logger))
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, logger)
		defer srv.Close()
	}
	if every, _ := cmd.Flags().GetInt("progress"); every > 0 {
		sched.OnCommit(func(f *simulation.Frame) {
			if f.Step%uint64(every) == 0 {
				logger.Infof("step %d/%d, centroid %v", f.Step, cfg.Steps, f.Centroid())
			}
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	start := time.Now()
	runErr := sched.Run(ctx, cfg.Steps)
	elapsed := time.Since(start)
	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return runErr
	}
	if runErr != nil {
		logger.Warnf("interrupted after %d steps", sched.Step())
	}

	frame := sched.Frame()
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := writeFrame(out, frame); err != nil {
			return err
		}
	}
	return printSummary(cmd, runSummary{
		Steps:    frame.Step,
		Agents:   frame.Len(),
		Seed:     cfg.Seed,
		Workers:  cfg.Workers,
		Elapsed:  elapsed.Round(time.Millisecond).String(),
		Centroid: frame.Centroid(),
	})
}

// loadRunConfig reads --config (or the defaults) and applies the flags the
// user actually set.
func loadRunConfig(cmd *cobra.Command) (*simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = simulation.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("agents") {
		cfg.AgentCount, _ = flags.GetInt("agents")
	}
	if flags.Changed("rule") {
		cfg.Rule, _ = flags.GetString("rule")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveMetrics(addr string, logger golog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s/metrics", addr)
	return srv
}

func writeFrame(path string, f *simulation.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s runSummary) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d agents, %d steps in %s, centroid %v\n",
		s.Agents, s.Steps, s.Elapsed, s.Centroid)
	return err
}
