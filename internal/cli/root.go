package cli

import (
	"os"

	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/spf13/cobra"
)

// options holds the persistent flags. Flags that were set override the
// config file and the environment.
type options struct {
	configPath     string
	addr           string
	dsn            string
	redisURL       string
	logLevel       string
	allowedOrigins []string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "classroom",
		Short:         "Real-time classroom server: rooms, questions and attendance over websockets",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("CLASSROOM_CONFIG"), "path to YAML config")
	flags.StringVar(&opts.addr, "addr", "", "server address")
	flags.StringVar(&opts.dsn, "dsn", "", "postgres connection string; empty keeps data in memory")
	flags.StringVar(&opts.redisURL, "redis-url", "", "redis URL for the read cache; empty caches in process")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level")
	flags.StringSliceVar(&opts.allowedOrigins, "allowed-origins", nil, "comma-separated list of allowed origins for CORS")

	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

// loadConfig reads the config file and environment, applies the flags that
// were set on cmd and validates the result.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if flags.Changed("dsn") {
		cfg.DatabaseDSN = opts.dsn
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = opts.redisURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = opts.allowedOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
