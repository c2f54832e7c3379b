package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alert type and severity enums (spec.md §3).
const (
	AlertTypeFall       = "fall"
	AlertTypeHeartRate  = "heart_rate"
	AlertTypeSpO2       = "spo2"
	AlertTypeTemperature = "temperature"
	AlertTypeCO         = "co"
	AlertTypeH2S        = "h2s"
	AlertTypeCH4        = "ch4"
	AlertTypeOffline    = "offline"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is the persisted derived-alert entity (spec.md §3).
type Alert struct {
	ID             uuid.UUID
	DeviceID       uuid.UUID
	UserID         uuid.UUID
	VitalID        *uuid.UUID
	Type           string
	Severity       string
	Message        string
	Value          *float64
	Threshold      *float64
	Acknowledged   bool
	AcknowledgedBy *uuid.UUID
	AcknowledgedAt *time.Time
	Resolved       bool
	ResolvedBy     *uuid.UUID
	ResolvedAt     *time.Time
	Timestamp      time.Time
	CreatedAt      time.Time
}

const alertColumns = `id, device_id, user_id, vital_id, type, severity, message, value, threshold,
	acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_by, resolved_at,
	"timestamp", created_at`

func scanAlert(row interface{ Scan(...any) error }) (Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.DeviceID, &a.UserID, &a.VitalID, &a.Type, &a.Severity, &a.Message, &a.Value, &a.Threshold,
		&a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.Resolved, &a.ResolvedBy, &a.ResolvedAt,
		&a.Timestamp, &a.CreatedAt)
	return a, err
}

// InsertAlert persists a derived alert.
func (s *Store) InsertAlert(ctx context.Context, dbtx DBTX, a Alert) (Alert, error) {
	row := dbtx.QueryRow(ctx, `
		INSERT INTO alerts (device_id, user_id, vital_id, type, severity, message, value, threshold, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+alertColumns,
		a.DeviceID, a.UserID, a.VitalID, a.Type, a.Severity, a.Message, a.Value, a.Threshold, a.Timestamp,
	)
	out, err := scanAlert(row)
	if err != nil {
		return Alert{}, translateErr("inserting alert", err)
	}
	return out, nil
}

// GetAlert returns a single alert by id.
func (s *Store) GetAlert(ctx context.Context, dbtx DBTX, id uuid.UUID) (Alert, error) {
	row := dbtx.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if err != nil {
		return Alert{}, translateErr("getting alert", err)
	}
	return a, nil
}

// AlertFilter narrows a ListAlerts query.
type AlertFilter struct {
	Severity     string
	Type         string
	Acknowledged *bool
	Resolved     *bool
	UserID       *uuid.UUID
	DeviceID     *uuid.UUID
	After        *time.Time
	Before       *time.Time
	Limit        int
	Offset       int
}

// ListAlerts returns alerts matching f, most recent first.
func (s *Store) ListAlerts(ctx context.Context, dbtx DBTX, f AlertFilter) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, val)
		argIdx++
	}

	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Acknowledged != nil {
		add("acknowledged = $%d", *f.Acknowledged)
	}
	if f.Resolved != nil {
		add("resolved = $%d", *f.Resolved)
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.DeviceID != nil {
		add("device_id = $%d", *f.DeviceID)
	}
	if f.After != nil {
		add(`"timestamp" >= $%d`, *f.After)
	}
	if f.Before != nil {
		add(`"timestamp" <= $%d`, *f.Before)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY "timestamp" DESC`

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, translateErr("listing alerts", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, translateErr("scanning alert row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating alert rows", err)
	}
	return out, nil
}

// AcknowledgeAlert sets acknowledged=true, actor, and time. Idempotent: if
// the alert is already acknowledged the existing acknowledger/time are
// returned unchanged (spec.md §4.D).
func (s *Store) AcknowledgeAlert(ctx context.Context, dbtx DBTX, id, actor uuid.UUID, at time.Time) (Alert, error) {
	row := dbtx.QueryRow(ctx, `
		UPDATE alerts SET
			acknowledged = true,
			acknowledged_by = COALESCE(acknowledged_by, $2),
			acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = $1
		RETURNING `+alertColumns,
		id, actor, at,
	)
	a, err := scanAlert(row)
	if err != nil {
		return Alert{}, translateErr("acknowledging alert", err)
	}
	return a, nil
}

// ResolveAlertBy sets resolved=true, resolved_by, and resolved_at.
func (s *Store) ResolveAlertBy(ctx context.Context, dbtx DBTX, id, actor uuid.UUID, at time.Time) (Alert, error) {
	row := dbtx.QueryRow(ctx, `
		UPDATE alerts SET
			resolved = true,
			resolved_by = COALESCE(resolved_by, $2),
			resolved_at = COALESCE(resolved_at, $3)
		WHERE id = $1
		RETURNING `+alertColumns,
		id, actor, at,
	)
	a, err := scanAlert(row)
	if err != nil {
		return Alert{}, translateErr("resolving alert", err)
	}
	return a, nil
}

// BulkAcknowledge acknowledges every id in one statement (spec.md §4.D:
// "atomic in one transaction"). Callers are expected to have already
// verified ownership for every id; this call does not re-check ownership,
// that belongs to the lifecycle manager's per-id authorisation pass.
func (s *Store) BulkAcknowledge(ctx context.Context, dbtx DBTX, ids []uuid.UUID, actor uuid.UUID, at time.Time) ([]Alert, error) {
	rows, err := dbtx.Query(ctx, `
		UPDATE alerts SET
			acknowledged = true,
			acknowledged_by = COALESCE(acknowledged_by, $2),
			acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = ANY($1)
		RETURNING `+alertColumns,
		ids, actor, at,
	)
	if err != nil {
		return nil, translateErr("bulk acknowledging alerts", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, translateErr("scanning bulk-acknowledged alert", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating bulk-acknowledged alerts", err)
	}
	return out, nil
}

// AlertStats is the gateway-computed aggregate behind GET /alerts/stats.
type AlertStats struct {
	Total          int64
	Unacknowledged int64
	Critical       int64
	ByType         map[string]int64
	BySeverity     map[string]int64
}

// AlertStatsFor computes alert statistics, optionally scoped to one user.
func (s *Store) AlertStatsFor(ctx context.Context, dbtx DBTX, userID *uuid.UUID) (AlertStats, error) {
	query := `SELECT
		count(*),
		count(*) FILTER (WHERE NOT acknowledged),
		count(*) FILTER (WHERE severity = 'critical')
		FROM alerts`
	var args []any
	if userID != nil {
		query += " WHERE user_id = $1"
		args = append(args, *userID)
	}

	var stats AlertStats
	if err := dbtx.QueryRow(ctx, query, args...).Scan(&stats.Total, &stats.Unacknowledged, &stats.Critical); err != nil {
		return AlertStats{}, translateErr("computing alert stats", err)
	}

	stats.ByType = map[string]int64{}
	typeQuery := `SELECT type, count(*) FROM alerts`
	if userID != nil {
		typeQuery += " WHERE user_id = $1"
	}
	typeQuery += " GROUP BY type"
	rows, err := dbtx.Query(ctx, typeQuery, args...)
	if err != nil {
		return AlertStats{}, translateErr("computing alert stats by type", err)
	}
	for rows.Next() {
		var t string
		var c int64
		if err := rows.Scan(&t, &c); err != nil {
			rows.Close()
			return AlertStats{}, translateErr("scanning alert stats by type", err)
		}
		stats.ByType[t] = c
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return AlertStats{}, translateErr("iterating alert stats by type", err)
	}

	stats.BySeverity = map[string]int64{}
	sevQuery := `SELECT severity, count(*) FROM alerts`
	if userID != nil {
		sevQuery += " WHERE user_id = $1"
	}
	sevQuery += " GROUP BY severity"
	rows, err = dbtx.Query(ctx, sevQuery, args...)
	if err != nil {
		return AlertStats{}, translateErr("computing alert stats by severity", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sev string
		var c int64
		if err := rows.Scan(&sev, &c); err != nil {
			return AlertStats{}, translateErr("scanning alert stats by severity", err)
		}
		stats.BySeverity[sev] = c
	}
	if err := rows.Err(); err != nil {
		return AlertStats{}, translateErr("iterating alert stats by severity", err)
	}

	return stats, nil
}

// HourlyAlertCounts returns the count of alerts per hour-of-day for a given date.
func (s *Store) HourlyAlertCounts(ctx context.Context, dbtx DBTX, date time.Time) (map[int]int64, error) {
	rows, err := dbtx.Query(ctx, `
		SELECT extract(hour from "timestamp")::int AS hr, count(*)
		FROM alerts
		WHERE "timestamp" >= $1 AND "timestamp" < $1 + interval '1 day'
		GROUP BY hr ORDER BY hr`, date)
	if err != nil {
		return nil, translateErr("computing hourly alert counts", err)
	}
	defer rows.Close()

	out := map[int]int64{}
	for rows.Next() {
		var hr int
		var c int64
		if err := rows.Scan(&hr, &c); err != nil {
			return nil, translateErr("scanning hourly alert counts", err)
		}
		out[hr] = c
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating hourly alert counts", err)
	}
	return out, nil
}

// DeleteAlertsBefore removes alerts older than cutoff; retention cleanup.
func (s *Store) DeleteAlertsBefore(ctx context.Context, dbtx DBTX, cutoff time.Time) (int64, error) {
	tag, err := dbtx.Exec(ctx, `DELETE FROM alerts WHERE "timestamp" < $1`, cutoff)
	if err != nil {
		return 0, translateErr("cleaning up alerts", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAllAlerts removes every alert. Test/demo hook, supervisor-only.
func (s *Store) ClearAllAlerts(ctx context.Context, dbtx DBTX) (int64, error) {
	tag, err := dbtx.Exec(ctx, `DELETE FROM alerts`)
	if err != nil {
		return 0, translateErr("clearing alerts", err)
	}
	return tag.RowsAffected(), nil
}
