package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Device is the persisted device entity (spec.md §3).
type Device struct {
	ID           uuid.UUID
	DeviceSerial string
	UserID       uuid.UUID
	BatteryLevel *int
	LastSeen     *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateDevice registers a device for a user. Returns Conflict on duplicate serial.
func (s *Store) CreateDevice(ctx context.Context, dbtx DBTX, userID uuid.UUID, serial string) (Device, error) {
	var d Device
	err := dbtx.QueryRow(ctx, `
		INSERT INTO devices (device_serial, user_id)
		VALUES ($1, $2)
		RETURNING id, device_serial, user_id, battery_level, last_seen, is_active, created_at, updated_at`,
		serial, userID,
	).Scan(&d.ID, &d.DeviceSerial, &d.UserID, &d.BatteryLevel, &d.LastSeen, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Device{}, translateErr("creating device", err)
	}
	return d, nil
}

// FindDeviceBySerial returns a device by its serial, regardless of active state.
func (s *Store) FindDeviceBySerial(ctx context.Context, dbtx DBTX, serial string) (Device, error) {
	var d Device
	err := dbtx.QueryRow(ctx, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at, updated_at
		FROM devices WHERE device_serial = $1`, serial,
	).Scan(&d.ID, &d.DeviceSerial, &d.UserID, &d.BatteryLevel, &d.LastSeen, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Device{}, translateErr("finding device by serial", err)
	}
	return d, nil
}

// FindDeviceByID returns a device by id.
func (s *Store) FindDeviceByID(ctx context.Context, dbtx DBTX, id uuid.UUID) (Device, error) {
	var d Device
	err := dbtx.QueryRow(ctx, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at, updated_at
		FROM devices WHERE id = $1`, id,
	).Scan(&d.ID, &d.DeviceSerial, &d.UserID, &d.BatteryLevel, &d.LastSeen, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Device{}, translateErr("getting device", err)
	}
	return d, nil
}

// ListDevices returns all devices, optionally restricted to a single user.
func (s *Store) ListDevices(ctx context.Context, dbtx DBTX, userID *uuid.UUID) ([]Device, error) {
	var rows pgx.Rows
	var err error
	if userID != nil {
		rows, err = dbtx.Query(ctx, `
			SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at, updated_at
			FROM devices WHERE user_id = $1 ORDER BY created_at DESC`, *userID)
	} else {
		rows, err = dbtx.Query(ctx, `
			SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at, updated_at
			FROM devices ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, translateErr("listing devices", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.DeviceSerial, &d.UserID, &d.BatteryLevel, &d.LastSeen, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, translateErr("scanning device row", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("iterating device rows", err)
	}
	return devices, nil
}

// TouchDevice updates last_seen and, if provided, battery_level for a device.
// Called on every ingested reading.
func (s *Store) TouchDevice(ctx context.Context, dbtx DBTX, id uuid.UUID, seenAt time.Time, batteryLevel *int) error {
	tag, err := dbtx.Exec(ctx, `
		UPDATE devices SET last_seen = $2, battery_level = COALESCE($3, battery_level), updated_at = now()
		WHERE id = $1`, id, seenAt, batteryLevel)
	if err != nil {
		return translateErr("touching device", err)
	}
	if tag.RowsAffected() == 0 {
		return translateErr("touching device", errNotFound)
	}
	return nil
}

// SetDeviceActive flips a device's is_active flag.
func (s *Store) SetDeviceActive(ctx context.Context, dbtx DBTX, id uuid.UUID, active bool) error {
	tag, err := dbtx.Exec(ctx, `UPDATE devices SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return translateErr("updating device state", err)
	}
	if tag.RowsAffected() == 0 {
		return translateErr("updating device state", errNotFound)
	}
	return nil
}
