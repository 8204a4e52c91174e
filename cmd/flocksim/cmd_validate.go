package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/simulation"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a configuration file without running it",
		Long: `Check a JSON or YAML configuration file against the schema and the
semantic rules applied at startup.

Examples:
  flocksim validate flock.yaml
  flocksim validate --json flock.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := simulation.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d agents, %.0fx%.0f, wrap=%t, seed %d)\n",
				args[0], cfg.AgentCount, cfg.WorldWidth, cfg.WorldHeight, cfg.Wraparound, cfg.Seed)
			return err
		},
	}
}
