// Package attendance is the Attendance State Machine (spec component E):
// derives a per-user, per-day check-in/check-out record from the stream
// of ingested readings, and runs the daily absence sweep.
package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/store"
)

// Machine implements the per-(user_id, date) attendance transitions
// described in spec.md §4.E.
type Machine struct {
	store      *store.Store
	location   *time.Location
	idleWindow time.Duration
}

// New creates an attendance state machine. Dates are computed in loc
// (spec.md §4.E: "Compute date in the system time zone"). idleWindow is
// the gap since the last check-in after which an open day with no
// subsequent reading is considered idle (spec.md §4.E: "check-out by
// idle window").
func New(st *store.Store, loc *time.Location, idleWindow time.Duration) *Machine {
	if loc == nil {
		loc = time.Local
	}
	return &Machine{store: st, location: loc, idleWindow: idleWindow}
}

// DateFor truncates a reading timestamp to its calendar date in the
// machine's configured time zone.
func (m *Machine) DateFor(ts time.Time) time.Time {
	t := ts.In(m.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TotalHours computes the one-decimal-precision hour span between
// checkIn and checkOut (spec.md §4.E).
func TotalHours(checkIn, checkOut time.Time) float64 {
	hours := checkOut.Sub(checkIn).Hours()
	return roundTo1(hours)
}

func roundTo1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// maxTime returns the later of a and b.
func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Process runs one reading's timestamp through the state machine for user
// userID in its own transaction, under a row lock so concurrent readings
// for the same user and day serialize (spec.md §4.E). Callers that already
// hold an open transaction for the same commit (the ingestion pipeline)
// should call ApplyTx directly instead, so the attendance transition
// shares that transaction rather than opening a second one.
func (m *Machine) Process(ctx context.Context, userID uuid.UUID, timestamp time.Time) (store.AttendanceDay, error) {
	var result store.AttendanceDay
	err := m.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		updated, err := m.ApplyTx(ctx, tx, userID, timestamp)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return store.AttendanceDay{}, err
	}
	return result, nil
}

// GetForUpdate returns the existing attendance row for (userID,
// DateFor(timestamp)) under a row lock within tx, or a NotFound apperr if
// no row exists yet for that day. Exposed so callers that need to observe
// the pre-transition state (the ingestion pipeline, to decide whether an
// AttendanceUpdate event is warranted) can do so before calling ApplyTx.
func (m *Machine) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, date time.Time) (store.AttendanceDay, error) {
	return m.store.GetByUserDateForUpdate(ctx, tx, userID, date)
}

// ApplyTx runs the check-in/check-out transition for (userID, timestamp)
// within the caller's transaction tx (spec.md §4.E):
//
//   - no row yet             → insert, check_in_time = timestamp, status present
//   - check-in only          → set check_out_time = timestamp
//   - check-in and check-out → set check_out_time = max(existing, timestamp)
//
// The check-out branches recompute total_hours from check_in_time to the
// resulting check_out_time; a check-in leaves total_hours unset. ApplyTx
// reads the prior state itself with GetByUserDateForUpdate, which locks the
// row for the rest of tx.
func (m *Machine) ApplyTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, timestamp time.Time) (store.AttendanceDay, error) {
	date := m.DateFor(timestamp)

	existing, err := m.store.GetByUserDateForUpdate(ctx, tx, userID, date)
	if err != nil {
		ae, ok := apperr.As(err)
		if !ok || ae.Kind != apperr.NotFound {
			return store.AttendanceDay{}, err
		}
		return m.store.CheckIn(ctx, tx, userID, date, timestamp)
	}

	if existing.CheckInTime == nil {
		// Defensive: a row with no check-in time shouldn't exist under
		// normal operation (only the sweep inserts check-in-less rows, and
		// only when absent). Treat this reading as the check-in.
		return m.store.CheckIn(ctx, tx, userID, date, timestamp)
	}

	checkOutAt := timestamp
	if existing.CheckOutTime != nil {
		checkOutAt = maxTime(*existing.CheckOutTime, timestamp)
	}
	return m.store.CheckOut(ctx, tx, userID, date, checkOutAt)
}

// RunSweep inserts an absent row for every employee with no attendance
// row for date (spec.md §4.E). Supervisor-triggered or operator-scheduled;
// idempotent under the table's unique key, so a re-run after a partial
// failure is safe.
func (m *Machine) RunSweep(ctx context.Context, actor *auth.Identity, date time.Time) (int, error) {
	if !auth.Allow(auth.ActionRunSweep, actor, auth.Target{}) {
		return 0, apperr.New(apperr.Forbidden, "only a supervisor may run the attendance sweep")
	}

	employees, err := m.store.ListUsers(ctx, m.store.Pool(), store.RoleEmployee)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, u := range employees {
		ok, err := m.store.MarkAbsent(ctx, m.store.Pool(), u.ID, date)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// RunIdleSweep flags every open attendance day for date (a check-in with
// no check-out yet) whose check-in is older than the machine's idle
// window as partial — the device went quiet mid-shift without sending a
// closing reading (spec.md §4.E: "check-out by idle window"). Like
// RunSweep, it is supervisor/operator-triggered. MarkPartial only requires
// that the day has no check-out, so a re-run marks an already-partial open
// day again and counts it again in the returned total.
func (m *Machine) RunIdleSweep(ctx context.Context, actor *auth.Identity, date time.Time) (int, error) {
	if !auth.Allow(auth.ActionRunSweep, actor, auth.Target{}) {
		return 0, apperr.New(apperr.Forbidden, "only a supervisor may run the attendance idle sweep")
	}

	open, err := m.store.OpenAttendanceDays(ctx, m.store.Pool(), date)
	if err != nil {
		return 0, err
	}

	marked := 0
	now := time.Now()
	for _, day := range open {
		if day.CheckInTime == nil || now.Sub(*day.CheckInTime) < m.idleWindow {
			continue
		}
		if _, err := m.store.MarkPartial(ctx, m.store.Pool(), day.UserID, day.Date); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// List returns attendance rows for userID within [from, to], scoped the
// same way alert queries are: employees may only view their own.
func (m *Machine) List(ctx context.Context, actor *auth.Identity, userID uuid.UUID, from, to time.Time) ([]store.AttendanceDay, error) {
	if !auth.Allow(auth.ActionRead, actor, auth.Target{OwnerUserID: userID}) {
		return nil, apperr.New(apperr.Forbidden, "cannot view another user's attendance")
	}
	return m.store.ListAttendance(ctx, m.store.Pool(), userID, from, to)
}
