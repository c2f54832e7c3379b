package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/alertlifecycle"
	"github.com/sentrywear/sentry/internal/attendance"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/config"
	"github.com/sentrywear/sentry/internal/store"
)

// systemActor is the identity the worker process acts as: a supervisor
// with no real account, so auth.Allow's ownership checks never block it
// (spec.md §4.E: sweep "triggerable by supervisor or scheduled by the
// operator"; §4.D: cleanup is a supervisor-only operation).
var systemActor = &auth.Identity{UserID: uuid.Nil, Email: "system", Role: auth.RoleSupervisor}

// runWorker runs the periodic background tasks the spec assigns to "the
// operator" rather than a request: the attendance absence sweep, the
// attendance idle sweep and the vitals/alerts retention cleanup. Each loop
// follows the ticker-plus-
// cancellation shape used elsewhere in the pack for long-lived background
// tasks: run once immediately, then on every tick, until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, st *store.Store, att *attendance.Machine, alerts *alertlifecycle.Manager) error {
	logger.Info("worker started")

	go runRetentionLoop(ctx, cfg, logger, st, alerts, 6*time.Hour)
	go runAttendanceIdleSweepLoop(ctx, logger, att, 5*time.Minute)
	runAttendanceSweepLoop(ctx, logger, att, 24*time.Hour)
	return nil
}

// runAttendanceIdleSweepLoop flags open attendance days whose check-in has
// gone idle beyond the configured window as partial (spec.md §4.E:
// "check-out by idle window"). It runs far more often than the daily
// absence sweep since idle detection needs to catch a quiet device within
// the window, not once a day.
func runAttendanceIdleSweepLoop(ctx context.Context, logger *slog.Logger, att *attendance.Machine, interval time.Duration) {
	runSweep := func() {
		date := att.DateFor(time.Now())
		n, err := att.RunIdleSweep(ctx, systemActor, date)
		if err != nil {
			logger.Error("attendance idle sweep failed", "date", date.Format("2006-01-02"), "error", err)
			return
		}
		if n > 0 {
			logger.Info("attendance idle sweep completed", "date", date.Format("2006-01-02"), "marked_partial", n)
		}
	}

	runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("attendance idle sweep loop stopped")
			return
		case <-ticker.C:
			runSweep()
		}
	}
}

// runAttendanceSweepLoop marks every employee with no attendance row for
// "yesterday" absent, once a day (spec.md §4.E point 3). It sweeps the
// previous day rather than the current one so employees still mid-shift
// are never marked absent before their day has ended.
func runAttendanceSweepLoop(ctx context.Context, logger *slog.Logger, att *attendance.Machine, interval time.Duration) {
	runSweep := func() {
		date := att.DateFor(time.Now().Add(-24 * time.Hour))
		n, err := att.RunSweep(ctx, systemActor, date)
		if err != nil {
			logger.Error("attendance sweep failed", "date", date.Format("2006-01-02"), "error", err)
			return
		}
		if n > 0 {
			logger.Info("attendance sweep completed", "date", date.Format("2006-01-02"), "inserted", n)
		}
	}

	runSweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("attendance sweep loop stopped")
			return
		case <-ticker.C:
			runSweep()
		}
	}
}

// runRetentionLoop deletes vitals and alerts older than their configured
// retention windows (spec.md §6: "vitals/alerts retention in days").
func runRetentionLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger, st *store.Store, alerts *alertlifecycle.Manager, interval time.Duration) {
	runCleanup := func() {
		vitalsCutoff := time.Duration(cfg.VitalsRetentionDays) * 24 * time.Hour
		if n, err := st.DeleteReadingsBefore(ctx, st.Pool(), time.Now().Add(-vitalsCutoff)); err != nil {
			logger.Error("vitals retention cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("vitals retention cleanup completed", "deleted", n)
		}

		alertsCutoff := time.Duration(cfg.AlertsRetentionDays) * 24 * time.Hour
		if n, err := alerts.Cleanup(ctx, systemActor, alertsCutoff); err != nil {
			logger.Error("alerts retention cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("alerts retention cleanup completed", "deleted", n)
		}
	}

	runCleanup()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention cleanup loop stopped")
			return
		case <-ticker.C:
			runCleanup()
		}
	}
}
