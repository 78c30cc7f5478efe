package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowscope/flowscope/pkg/server"
	"github.com/flowscope/flowscope/pkg/storage"
	"github.com/flowscope/flowscope/pkg/tracker"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the observability server",
		Long: `Start the FlowScope server: accepts node-level events on POST /api/events,
streams normalized frame events over /ws, and serves snapshot queries under /api.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(cfg)

			var history *storage.SQLiteFrameRepository
			if cfg.History.Enabled {
				if cfg.History.Path != "" {
					history, err = storage.NewSQLiteFrameRepositoryWithPath(cfg.History.Path)
				} else {
					history, err = storage.NewSQLiteFrameRepository()
				}
				if err != nil {
					// History is an enhancement; the live view works without it.
					logger.Warn().Err(err).Msg("frame history unavailable, continuing without archive")
					history = nil
				} else {
					defer func() { _ = history.Close() }()
				}
			}

			opts := cfg.TrackerOptions()
			opts.Logger = logger
			if history != nil {
				opts.Archiver = history
			}
			manager := tracker.NewManager(opts)
			defer manager.Close()

			serverOpts := server.Options{
				Addr:   cfg.Server.Addr,
				Debug:  cfg.Server.Debug || globalFlags.Debug,
				Logger: logger,
			}
			if history != nil {
				serverOpts.History = history
			}
			srv, err := server.New(manager, serverOpts)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			// Shut down cleanly on SIGINT/SIGTERM.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			if history != nil && cfg.History.MaxRows > 0 {
				if err := history.Prune(cfg.History.MaxRows); err != nil {
					logger.Warn().Err(err).Msg("history prune failed")
				}
			}

			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
