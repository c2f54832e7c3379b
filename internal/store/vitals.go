package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reading is the persisted vital-sign sample (spec.md §3, "Vital"). It is
// immutable once inserted.
type Reading struct {
	ID           uuid.UUID
	DeviceID     uuid.UUID
	Timestamp    time.Time
	HeartRate    *int
	SpO2         *int
	Temperature  *float64
	Latitude     *float64
	Longitude    *float64
	GPSAccuracy  *float64
	FallDetected bool
	CO           *float64
	H2S          *float64
	CH4          *float64
	CreatedAt    time.Time
}

// InsertReading persists a reading. Readings are immutable after insert.
func (s *Store) InsertReading(ctx context.Context, dbtx DBTX, r Reading) (Reading, error) {
	err := dbtx.QueryRow(ctx, `
		INSERT INTO vitals (device_id, "timestamp", heart_rate, spo2, temperature,
			latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, device_id, "timestamp", heart_rate, spo2, temperature,
			latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4, created_at`,
		r.DeviceID, r.Timestamp, r.HeartRate, r.SpO2, r.Temperature,
		r.Latitude, r.Longitude, r.GPSAccuracy, r.FallDetected, r.CO, r.H2S, r.CH4,
	).Scan(&r.ID, &r.DeviceID, &r.Timestamp, &r.HeartRate, &r.SpO2, &r.Temperature,
		&r.Latitude, &r.Longitude, &r.GPSAccuracy, &r.FallDetected, &r.CO, &r.H2S, &r.CH4, &r.CreatedAt)
	if err != nil {
		return Reading{}, translateErr("inserting reading", err)
	}
	return r, nil
}

func scanReading(row interface{ Scan(...any) error }) (Reading, error) {
	var r Reading
	err := row.Scan(&r.ID, &r.DeviceID, &r.Timestamp, &r.HeartRate, &r.SpO2, &r.Temperature,
		&r.Latitude, &r.Longitude, &r.GPSAccuracy, &r.FallDetected, &r.CO, &r.H2S, &r.CH4, &r.CreatedAt)
	return r, err
}

const readingColumns = `id, device_id, "timestamp", heart_rate, spo2, temperature,
	latitude, longitude, gps_accuracy, fall_detected, co, h2s, ch4, created_at`

// LatestReadingForDevice returns the most recent reading for a device.
func (s *Store) LatestReadingForDevice(ctx context.Context, dbtx DBTX, deviceID uuid.UUID) (Reading, error) {
	row := dbtx.QueryRow(ctx, `SELECT `+readingColumns+` FROM vitals WHERE device_id = $1 ORDER BY "timestamp" DESC LIMIT 1`, deviceID)
	r, err := scanReading(row)
	if err != nil {
		return Reading{}, translateErr("getting latest reading", err)
	}
	return r, nil
}

// ReadingFilter narrows a ListReadings query.
type ReadingFilter struct {
	DeviceID *uuid.UUID
	UserID   *uuid.UUID // joins devices
	After    *time.Time
	Before   *time.Time
	Abnormal bool // restrict to readings outside the default healthy bands
	Limit    int
	Offset   int
}

// ListReadings returns readings matching f, most recent first.
func (s *Store) ListReadings(ctx context.Context, dbtx DBTX, f ReadingFilter) ([]Reading, error) {
	query := `SELECT v.id, v.device_id, v."timestamp", v.heart_rate, v.spo2, v.temperature,
		v.latitude, v.longitude, v.gps_accuracy, v.fall_detected, v.co, v.h2s, v.ch4, v.created_at
		FROM vitals v`
	var joins []string
	var conditions []string
	var args []any
	argIdx := 1

	if f.UserID != nil {
		joins = append(joins, "JOIN devices d ON d.id = v.device_id")
		conditions = append(conditions, fmt.Sprintf("d.user_id = $%d", argIdx))
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.DeviceID != nil {
		conditions = append(conditions, fmt.Sprintf("v.device_id = $%d", argIdx))
		args = append(args, *f.DeviceID)
		argIdx++
	}
	if f.After != nil {
		conditions = append(conditions, fmt.Sprintf(`v."timestamp" >= $%d`, argIdx))
		args = append(args, *f.After)
		argIdx++
	}
	if f.Before != nil {
		conditions = append(conditions, fmt.Sprintf(`v."timestamp" <= $%d`, argIdx))
		args = append(args, *f.Before)
		argIdx++
	}
	if f.Abnormal {
		conditions = append(conditions, `(v.fall_detected OR v.heart_rate < 60 OR v.heart_rate > 100
			OR v.spo2 < 95 OR v.temperature < 36.0 OR v.temperature > 37.5
			OR v.co > 35 OR v.h2s > 10 OR v.ch4 > 10)`)
	}

	if len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY v."timestamp" DESC`

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, translateErr("listing readings", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, translateErr("scanning reading row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating reading rows", err)
	}
	return out, nil
}

// VitalsSummary is the gateway-computed aggregate behind GET /vitals/stats.
type VitalsSummary struct {
	TotalReadings  int64
	AvgHeartRate   *float64
	AvgSpO2        *float64
	AvgTemperature *float64
	FallCount      int64
}

// VitalsSummaryFor computes aggregate stats, optionally scoped to one user.
func (s *Store) VitalsSummaryFor(ctx context.Context, dbtx DBTX, userID *uuid.UUID, since time.Time) (VitalsSummary, error) {
	query := `SELECT count(*), avg(v.heart_rate), avg(v.spo2), avg(v.temperature),
		count(*) FILTER (WHERE v.fall_detected)
		FROM vitals v JOIN devices d ON d.id = v.device_id
		WHERE v."timestamp" >= $1`
	args := []any{since}
	if userID != nil {
		query += " AND d.user_id = $2"
		args = append(args, *userID)
	}

	var summary VitalsSummary
	err := dbtx.QueryRow(ctx, query, args...).Scan(
		&summary.TotalReadings, &summary.AvgHeartRate, &summary.AvgSpO2, &summary.AvgTemperature, &summary.FallCount,
	)
	if err != nil {
		return VitalsSummary{}, translateErr("computing vitals summary", err)
	}
	return summary, nil
}

// DeleteReadingsBefore removes vitals older than cutoff; used by the
// retention cleanup endpoint. Returns the number of rows removed.
func (s *Store) DeleteReadingsBefore(ctx context.Context, dbtx DBTX, cutoff time.Time) (int64, error) {
	tag, err := dbtx.Exec(ctx, `DELETE FROM vitals WHERE "timestamp" < $1`, cutoff)
	if err != nil {
		return 0, translateErr("cleaning up vitals", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAllReadings removes every vital. Test/demo hook, supervisor-only.
func (s *Store) ClearAllReadings(ctx context.Context, dbtx DBTX) (int64, error) {
	tag, err := dbtx.Exec(ctx, `DELETE FROM vitals`)
	if err != nil {
		return 0, translateErr("clearing vitals", err)
	}
	return tag.RowsAffected(), nil
}
