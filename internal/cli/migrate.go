package cli

import (
	"errors"

	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == "" {
				return errors.New("database dsn not configured")
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			if err := database.Migrate(cfg.DatabaseDSN); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
