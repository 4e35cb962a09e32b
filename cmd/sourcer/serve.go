package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/config"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	srv "github.com/mohammad-safakhou/sourcer/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var autoMigrate bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			logger := logging.New(cfg)
			defer func() { _ = logger.Sync() }()

			if autoMigrate {
				if err := srv.Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					logger.Error("auto migrate", zap.Error(err))
					return err
				}
			}
			return srv.Run(cmd.Context(), cfg, logger)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&autoMigrate, "migrate", false, "apply migrations before serving")

	return serve
}
