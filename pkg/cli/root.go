// Package cli implements the flowscope command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/flowscope/flowscope/pkg/config"
)

const (
	// Version is the current version of FlowScope
	Version = "1.0.0"
)

// GlobalFlags holds the flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// globalFlags is the shared flag instance.
var globalFlags = &GlobalFlags{}

// NewRootCommand creates the root cobra command for FlowScope.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowscope",
		Short: "FlowScope - Execution observability for dataflow runtimes",
		Long: `FlowScope reconstructs logical executions from per-node input/output
notifications emitted by a dataflow-graph runtime, infers node semantics from
observed I/O, and exposes a bounded, redacted, real-time view over WebSocket
plus a REST snapshot API.`,
		Version: Version,
	}

	cmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "Configuration file (YAML)")
	cmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewFramesCommand())
	cmd.AddCommand(NewStatsCommand())
	cmd.AddCommand(NewConfigCommand())

	return cmd
}

// loadConfig loads the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from configuration and flags.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if globalFlags.Debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
