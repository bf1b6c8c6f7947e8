package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Featly HTTP service",
	Long:  `Starts the HTTP API with its background maintenance jobs: the nightly corpus sync and the confirmation expiry sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		comps, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		readTimeout, err := config.DurationOrDefault(cfg.Server.ReadTimeout, config.DefaultServerReadTimeout)
		if err != nil {
			return err
		}
		writeTimeout, err := config.DurationOrDefault(cfg.Server.WriteTimeout, config.DefaultServerWriteTimeout)
		if err != nil {
			return err
		}
		idleTimeout, err := config.DurationOrDefault(cfg.Server.IdleTimeout, config.DefaultServerIdleTimeout)
		if err != nil {
			return err
		}
		shutdownTimeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
		if err != nil {
			return err
		}

		api := httpapi.NewServer(comps.store, comps.machine, comps.pipeline, comps.reconciler, comps.orchestrator)
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      api.Router(),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Scheduler.SyncSpec, func() {
			if _, err := comps.pipeline.SyncAll(ctx); err != nil {
				slog.Error("Scheduled corpus sync failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule corpus sync: %w", err)
		}
		if _, err := scheduler.AddFunc(cfg.Scheduler.SweepSpec, func() {
			if _, err := comps.machine.CleanupExpired(ctx); err != nil {
				slog.Error("Scheduled confirmation sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule confirmation sweep: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
