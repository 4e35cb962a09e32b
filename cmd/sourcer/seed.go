package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sourcer/config"
	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	srv "github.com/mohammad-safakhou/sourcer/internal/server"
	"github.com/mohammad-safakhou/sourcer/internal/store"
)

func seedCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample suppliers into the candidate store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			logger := logging.New(cfg)
			defer func() { _ = logger.Sync() }()

			st, err := store.NewWithDSN(cmd.Context(), cfg.Storage.Postgres.DSN(), logger)
			if err != nil {
				return err
			}
			defer st.Close()

			d := cfg.Discovery
			n, err := srv.Seed(cmd.Context(), st, discovery.Normalizer{Reference: d.ReferenceCurrency, Rates: d.CurrencyRates})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d suppliers\n", n)
			return nil
		},
	}
}
