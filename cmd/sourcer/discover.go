package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sourcer/config"
	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	srv "github.com/mohammad-safakhou/sourcer/internal/server"
)

func discoverCMD(cfgPath *string) *cobra.Command {
	var sessionID, input, preference, query string
	var discover = &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery session and print the report",
		Example: `  sourcer discover --input '{"material":"zinc","region":"sri lanka","delivery_time_days":{"$lte":15}}'
  sourcer discover --query "copper cathode suppliers in asia with ISO 9001"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (strings.TrimSpace(input) == "") == (strings.TrimSpace(query) == "") {
				return fmt.Errorf("exactly one of --input or --query is required")
			}
			cfg := config.LoadConfig(*cfgPath)
			logger := logging.New(cfg)
			defer func() { _ = logger.Sync() }()

			app, err := srv.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			var out any
			if query != "" {
				res, err := app.Agent.Run(cmd.Context(), query, nil)
				if err != nil {
					return err
				}
				out = res
			} else {
				reqs, err := discovery.DecodeRequirements([]byte(input))
				if err != nil {
					return err
				}
				out = app.Orchestrator.RunDiscovery(cmd.Context(), sessionID, reqs, preference)
			}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	discover.Flags().StringVar(&sessionID, "session", "", "session id (generated when empty)")
	discover.Flags().StringVar(&input, "input", "", "requirements as a JSON object")
	discover.Flags().StringVar(&preference, "preference", "", "optional qualitative preference, e.g. high")
	discover.Flags().StringVar(&query, "query", "", "free-text query for the tool-driven mode")

	return discover
}
