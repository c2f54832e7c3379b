// Package alertlifecycle is the Alert Lifecycle Manager (spec component
// D): the state machine governing an alert's new → acknowledged →
// resolved transitions, plus the filtered listing and aggregate queries
// built on top of the Store Gateway.
package alertlifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/store"
)

// Manager implements the alert state machine described in spec.md §4.D.
type Manager struct {
	store *store.Store
	clock func() time.Time
}

// New creates an alert lifecycle manager.
func New(st *store.Store) *Manager {
	return &Manager{store: st, clock: time.Now}
}

// List returns alerts matching f, scoped to the caller: employees are
// restricted to their own alerts regardless of what f.UserID asks for;
// supervisors see whatever f asks for (spec.md §4.B, §4.D).
func (m *Manager) List(ctx context.Context, actor *auth.Identity, f store.AlertFilter) ([]store.Alert, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if !actor.IsSupervisor() {
		f.UserID = &actor.UserID
	}
	return m.store.ListAlerts(ctx, m.store.Pool(), f)
}

// Stats computes alert statistics scoped to the caller the same way List
// is (spec.md §4.D: "Stats and hourly/daily aggregates are computed by
// the gateway; the manager only assembles").
func (m *Manager) Stats(ctx context.Context, actor *auth.Identity, userID *uuid.UUID) (store.AlertStats, error) {
	if actor == nil {
		return store.AlertStats{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if !actor.IsSupervisor() {
		userID = &actor.UserID
	}
	return m.store.AlertStatsFor(ctx, m.store.Pool(), userID)
}

// Acknowledge transitions an alert from new to acknowledged. Idempotent:
// acknowledging an already-acknowledged alert is a no-op, not an error
// (spec.md §4.D). Returns Forbidden if actor is an employee who does not
// own the alert, NotFound if it doesn't exist.
func (m *Manager) Acknowledge(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (store.Alert, error) {
	if actor == nil {
		return store.Alert{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}

	existing, err := m.store.GetAlert(ctx, m.store.Pool(), alertID)
	if err != nil {
		return store.Alert{}, err
	}
	if !auth.Allow(auth.ActionAcknowledge, actor, auth.Target{OwnerUserID: existing.UserID}) {
		return store.Alert{}, apperr.New(apperr.Forbidden, "cannot acknowledge another user's alert")
	}

	return m.store.AcknowledgeAlert(ctx, m.store.Pool(), alertID, actor.UserID, m.clock())
}

// Resolve transitions an alert (new or acknowledged) to resolved.
// Supervisor only (spec.md §4.D).
func (m *Manager) Resolve(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (store.Alert, error) {
	if actor == nil {
		return store.Alert{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if _, err := m.store.GetAlert(ctx, m.store.Pool(), alertID); err != nil {
		return store.Alert{}, err
	}
	if !auth.Allow(auth.ActionResolve, actor, auth.Target{}) {
		return store.Alert{}, apperr.New(apperr.Forbidden, "only a supervisor may resolve an alert")
	}
	return m.store.ResolveAlertBy(ctx, m.store.Pool(), alertID, actor.UserID, m.clock())
}

// BulkAcknowledge acknowledges every id atomically in one transaction.
// Ownership is re-checked per id before any write is applied; if any id
// fails the ownership check (or doesn't exist) the whole operation rolls
// back and returns Forbidden/NotFound (spec.md §4.D).
func (m *Manager) BulkAcknowledge(ctx context.Context, actor *auth.Identity, ids []uuid.UUID) ([]store.Alert, error) {
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var result []store.Alert
	err := m.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, id := range ids {
			existing, err := m.store.GetAlert(ctx, tx, id)
			if err != nil {
				return err
			}
			if !auth.Allow(auth.ActionAcknowledge, actor, auth.Target{OwnerUserID: existing.UserID}) {
				return apperr.New(apperr.Forbidden, "cannot acknowledge another user's alert").WithFields(map[string]string{
					"alert_id": id.String(),
				})
			}
		}

		acked, err := m.store.BulkAcknowledge(ctx, tx, ids, actor.UserID, m.clock())
		if err != nil {
			return err
		}
		result = acked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HourlyCounts returns the hourly alert distribution for a given date
// (supervisor-facing trend read).
func (m *Manager) HourlyCounts(ctx context.Context, actor *auth.Identity, date time.Time) (map[int]int64, error) {
	if !actor.IsSupervisor() {
		return nil, apperr.New(apperr.Forbidden, "only a supervisor may view aggregate trends")
	}
	return m.store.HourlyAlertCounts(ctx, m.store.Pool(), date)
}

// Cleanup removes alerts older than the retention window. Supervisor only.
func (m *Manager) Cleanup(ctx context.Context, actor *auth.Identity, olderThan time.Duration) (int64, error) {
	if !auth.Allow(auth.ActionCleanup, actor, auth.Target{}) {
		return 0, apperr.New(apperr.Forbidden, "only a supervisor may run retention cleanup")
	}
	return m.store.DeleteAlertsBefore(ctx, m.store.Pool(), m.clock().Add(-olderThan))
}
