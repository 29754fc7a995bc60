package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lexd/internal/config"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg    config.Config
	logger zerolog.Logger
)

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lexd",
		Short:         "Model lifecycle supervisor: isolated model host, crash-tolerant channel, recovery loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (yaml|json|toml); LEXD_* env vars override it")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		resolved, err := config.Resolve(flagConfig)
		if err != nil {
			return fmt.Errorf("resolve config: %w", err)
		}
		cfg = resolved
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		logger = newLogger(cfg.LogLevel)
		return nil
	}

	root.AddCommand(buildHostCmd(), buildSuperviseCmd(), buildStatusCmd(), buildUnloadCmd())
	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// Execute runs the CLI. Errors are logged here so subcommands only
// return them.
func Execute() error {
	err := buildRootCmd().Execute()
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
	}
	return err
}
