package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/serviciomed/serviciomed/internal/config"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

type cfgKey struct{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "serviciomed",
		Short:        "Student medical-service intake: registration, health survey, exam and documents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// initialize logging (LOG_LEVEL env: debug|info|warn|error|fatal)
			logger.Init(os.Getenv("LOG_LEVEL"))
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger.Configure(cfg.Log.Level, cfg.Log.Format)
			logger.Debugf("startup: LOG_LEVEL=%s driver=%s storage=%s", logger.LevelString(), cfg.Database.Driver, cfg.Storage.Backend)
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
			return nil
		},
	}
	serve := newServeCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, newMigrateCmd(), newProgramsCmd(), newRegisterCmd(), newRenderCmd())
	return root
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(cfgKey{}).(*config.Config)
}
