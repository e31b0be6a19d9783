package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/backup"
	"github.com/dukerupert/chorewheel/internal/server"
	"github.com/dukerupert/chorewheel/internal/trigger"
)

const (
	sentReminderRetention = 90 * 24 * time.Hour
	limiterIdle           = 10 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			srv := server.New(db, cfg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := trigger.NewRunner(cfg.Location(), logger.With("component", "trigger"))
			jobLogger := logger.With("component", "jobs")
			if cfg.TriggerEnabled {
				if err := runner.Schedule("rotation", cfg.RotationSchedule, trigger.RotationJob(srv.Engine(), jobLogger)); err != nil {
					return err
				}
				if err := runner.Schedule("reminders", cfg.ReminderSchedule, trigger.ReminderJob(srv.Engine(), jobLogger)); err != nil {
					return err
				}
			}
			if err := runner.Schedule("cleanup", "@daily", trigger.CleanupJob(srv.NotificationStore(), sentReminderRetention, jobLogger)); err != nil {
				return err
			}
			if err := runner.Schedule("limiter-cleanup", "@every 5m", func(context.Context, time.Time) error {
				for _, rl := range srv.RateLimiters() {
					rl.Cleanup(limiterIdle)
				}
				return nil
			}); err != nil {
				return err
			}
			if bcfg := cfg.Backup(); bcfg.Enabled() {
				mgr, err := backup.NewManager(bcfg, db, logger.With("component", "backup"))
				if err != nil {
					return err
				}
				if err := runner.Schedule("backup", cfg.BackupSchedule, trigger.BackupJob(mgr, jobLogger)); err != nil {
					return err
				}
			}
			runner.Start(ctx)
			defer runner.Stop()

			httpServer := &http.Server{
				Addr:         cfg.Addr(),
				Handler:      srv.Router(),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("chorewheel listening", "addr", httpServer.Addr, "trigger", cfg.TriggerEnabled)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}
