// Package trigger runs the engine's scheduled entry points on cron
// schedules. The engine itself owns no timers.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/chorewheel/internal/backup"
	"github.com/dukerupert/chorewheel/internal/engine"
)

// Job is one scheduled unit of work. now is the tick time in the runner's
// location.
type Job func(ctx context.Context, now time.Time) error

// Engine is the part of engine.Engine the runner drives.
type Engine interface {
	RunScheduledRotation(ctx context.Context, now time.Time) (*engine.RotationReport, error)
	DueReminders(ctx context.Context, now time.Time) (*engine.ReminderReport, error)
}

// SentReminderCleaner drops dedup markers older than a cutoff.
type SentReminderCleaner interface {
	CleanupSent(ctx context.Context, before time.Time) (int64, error)
}

// Backuper takes a snapshot and prunes expired ones.
type Backuper interface {
	Run(ctx context.Context, now time.Time) (*backup.Snapshot, error)
	Cleanup(ctx context.Context, now time.Time) (int, error)
}

// Runner fires jobs on cron schedules. A job that is still running when
// its next tick arrives is skipped for that tick.
type Runner struct {
	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func NewRunner(loc *time.Location, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    context.Background(),
		logger: logger,
	}
}

// Schedule registers job under a standard five-field cron spec.
func (r *Runner) Schedule(name, spec string, job Job) error {
	_, err := r.cron.AddFunc(spec, func() { r.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	r.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start begins firing jobs. Jobs receive a context derived from ctx that is
// canceled by Stop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()
	r.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-r.cron.Stop().Done()
}

func (r *Runner) run(name string, job Job) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	start := time.Now()
	if err := job(ctx, start.In(r.cron.Location())); err != nil {
		r.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	r.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}

// RotationJob runs a scheduled rotation. Per-chore failures are logged and
// do not fail the job.
func RotationJob(eng Engine, logger *slog.Logger) Job {
	return func(ctx context.Context, now time.Time) error {
		report, err := eng.RunScheduledRotation(ctx, now)
		if err != nil {
			return err
		}
		logger.Info("scheduled rotation",
			"run_id", report.RunID,
			"rotated", report.Rotated(),
			"skipped", report.Skipped(),
			"failed", len(report.Failures()),
			"notices", len(report.Deliveries),
		)
		if err := report.Err(); err != nil {
			logger.Warn("rotation failures", "run_id", report.RunID, "error", err)
		}
		return nil
	}
}

// ReminderJob dispatches and delivers due reminders.
func ReminderJob(eng Engine, logger *slog.Logger) Job {
	return func(ctx context.Context, now time.Time) error {
		report, err := eng.DueReminders(ctx, now)
		if report == nil {
			return err
		}
		if err != nil {
			logger.Warn("reminders partially dispatched", "error", err)
		}
		logger.Info("reminders", "intents", len(report.Intents), "sent", report.Sent())
		return nil
	}
}

// CleanupJob removes dedup markers older than retention.
func CleanupJob(store SentReminderCleaner, retention time.Duration, logger *slog.Logger) Job {
	return func(ctx context.Context, now time.Time) error {
		n, err := store.CleanupSent(ctx, now.Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("cleaned sent reminders", "removed", n)
		}
		return nil
	}
}

// BackupJob uploads a snapshot, then prunes old ones. A failed prune is
// logged and does not fail the job.
func BackupJob(b Backuper, logger *slog.Logger) Job {
	return func(ctx context.Context, now time.Time) error {
		if _, err := b.Run(ctx, now); err != nil {
			return err
		}
		n, err := b.Cleanup(ctx, now)
		if err != nil {
			logger.Warn("backup cleanup", "error", err)
			return nil
		}
		if n > 0 {
			logger.Info("pruned backups", "removed", n)
		}
		return nil
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
