package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Attendance status values.
const (
	AttendanceStatusPresent = "present"
	AttendanceStatusAbsent  = "absent"
	AttendanceStatusPartial = "partial"
)

// AttendanceDay is the persisted per-user, per-calendar-day attendance row
// (spec.md §3, "AttendanceDay"). A user has at most one row per date,
// enforced by the table's UNIQUE(user_id, date) constraint.
type AttendanceDay struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Date         time.Time
	CheckInTime  *time.Time
	CheckOutTime *time.Time
	TotalHours   *float64
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const attendanceColumns = `id, user_id, date, check_in_time, check_out_time, total_hours, status, created_at, updated_at`

func scanAttendance(row interface{ Scan(...any) error }) (AttendanceDay, error) {
	var a AttendanceDay
	err := row.Scan(&a.ID, &a.UserID, &a.Date, &a.CheckInTime, &a.CheckOutTime, &a.TotalHours, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetByUserDate returns the attendance row for (userID, date), or NotFound
// if the user has no row for that day yet. Callers that need to
// check-in/out under lock should call this inside a transaction obtained
// from Store.WithTx and rely on Postgres's implicit row lock taken by the
// subsequent UPDATE — or use GetByUserDateForUpdate to lock up front.
func (s *Store) GetByUserDate(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time) (AttendanceDay, error) {
	row := dbtx.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id = $1 AND date = $2`, userID, date)
	a, err := scanAttendance(row)
	if err != nil {
		return AttendanceDay{}, translateErr("getting attendance day", err)
	}
	return a, nil
}

// GetByUserDateForUpdate is GetByUserDate with FOR UPDATE, so the row
// (once it exists) is locked for the remainder of the caller's
// transaction. Required by the attendance state machine (spec.md §4.E)
// to serialize concurrent check-in/check-out/sweep operations for the
// same (user_id, date).
func (s *Store) GetByUserDateForUpdate(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time) (AttendanceDay, error) {
	row := dbtx.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id = $1 AND date = $2 FOR UPDATE`, userID, date)
	a, err := scanAttendance(row)
	if err != nil {
		return AttendanceDay{}, translateErr("getting attendance day for update", err)
	}
	return a, nil
}

// CheckIn creates today's attendance row (status present, no check-out) if
// none exists, otherwise leaves an existing check-in time untouched
// (idempotent — a device reconnect replaying the first reading of the day
// must not reset an existing check-in).
func (s *Store) CheckIn(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time, at time.Time) (AttendanceDay, error) {
	row := dbtx.QueryRow(ctx, `
		INSERT INTO attendance (user_id, date, check_in_time, status)
		VALUES ($1, $2, $3, 'present')
		ON CONFLICT (user_id, date) DO UPDATE SET
			check_in_time = COALESCE(attendance.check_in_time, EXCLUDED.check_in_time),
			updated_at = now()
		RETURNING `+attendanceColumns,
		userID, date, at,
	)
	a, err := scanAttendance(row)
	if err != nil {
		return AttendanceDay{}, translateErr("checking in", err)
	}
	return a, nil
}

// CheckOut sets check_out_time and total_hours for an existing attendance
// row. Recomputing total_hours from check_in_time to at on every call
// makes repeated check-outs for the same day idempotent.
func (s *Store) CheckOut(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time, at time.Time) (AttendanceDay, error) {
	row := dbtx.QueryRow(ctx, `
		UPDATE attendance SET
			check_out_time = $3,
			total_hours = ROUND(EXTRACT(EPOCH FROM ($3 - check_in_time)) / 3600.0, 1),
			status = CASE WHEN check_in_time IS NULL THEN status ELSE 'present' END,
			updated_at = now()
		WHERE user_id = $1 AND date = $2
		RETURNING `+attendanceColumns,
		userID, date, at,
	)
	a, err := scanAttendance(row)
	if err != nil {
		return AttendanceDay{}, translateErr("checking out", err)
	}
	return a, nil
}

// MarkPartial flags a day as partial (check-in present, shift ended early
// or without an explicit check-out) — used by the idle-timeout sweep
// (spec.md §4.E) when a device goes quiet mid-shift.
func (s *Store) MarkPartial(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time) (AttendanceDay, error) {
	row := dbtx.QueryRow(ctx, `
		UPDATE attendance SET status = 'partial', updated_at = now()
		WHERE user_id = $1 AND date = $2 AND check_out_time IS NULL
		RETURNING `+attendanceColumns,
		userID, date,
	)
	a, err := scanAttendance(row)
	if err != nil {
		return AttendanceDay{}, translateErr("marking attendance partial", err)
	}
	return a, nil
}

// MarkAbsent inserts an absent row for (userID, date) if none exists yet.
// A no-op if a row already exists — idempotent under the table's
// UNIQUE(user_id, date) constraint, as required by the daily sweep
// (spec.md §4.E).
func (s *Store) MarkAbsent(ctx context.Context, dbtx DBTX, userID uuid.UUID, date time.Time) (inserted bool, err error) {
	tag, err := dbtx.Exec(ctx, `
		INSERT INTO attendance (user_id, date, status)
		VALUES ($1, $2, 'absent')
		ON CONFLICT (user_id, date) DO NOTHING`,
		userID, date,
	)
	if err != nil {
		return false, translateErr("marking absent", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAttendance returns attendance rows for a user within [from, to] inclusive.
func (s *Store) ListAttendance(ctx context.Context, dbtx DBTX, userID uuid.UUID, from, to time.Time) ([]AttendanceDay, error) {
	rows, err := dbtx.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date DESC`, userID, from, to)
	if err != nil {
		return nil, translateErr("listing attendance", err)
	}
	defer rows.Close()

	var out []AttendanceDay
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, translateErr("scanning attendance row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating attendance rows", err)
	}
	return out, nil
}

// OpenAttendanceDays returns every attendance row for date that has a
// check-in but no check-out yet — the candidate set the idle-timeout
// sweep (spec.md §4.E) evaluates each tick.
func (s *Store) OpenAttendanceDays(ctx context.Context, dbtx DBTX, date time.Time) ([]AttendanceDay, error) {
	rows, err := dbtx.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance WHERE date = $1 AND check_in_time IS NOT NULL AND check_out_time IS NULL`, date)
	if err != nil {
		return nil, translateErr("listing open attendance days", err)
	}
	defer rows.Close()

	var out []AttendanceDay
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, translateErr("scanning open attendance row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating open attendance rows", err)
	}
	return out, nil
}
