// Package ingest is the Ingestion Pipeline (spec component F): the single
// critical path every device sample runs through — validate, persist the
// reading, derive alerts, apply the attendance transition, commit, then
// fan out. It is the only package that wires together the Store Gateway,
// the Threshold Evaluator, the Attendance State Machine, and the Event Bus.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/attendance"
	"github.com/sentrywear/sentry/internal/eventbus"
	"github.com/sentrywear/sentry/internal/store"
	"github.com/sentrywear/sentry/internal/telemetry"
	"github.com/sentrywear/sentry/internal/threshold"
)

// Payload is the validated device sample (spec.md §6 "Device payload").
// Pointers distinguish "not reported" from a zero value.
type Payload struct {
	DeviceSerial string
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
	BatteryLevel *int
	Timestamp    *time.Time
}

// Validate checks Payload against the field ranges in spec.md §6. An empty
// device serial or an out-of-range numeric field returns a Validation error
// carrying per-field detail.
func Validate(p Payload) error {
	fields := map[string]string{}

	if p.DeviceSerial == "" {
		fields["device_serial"] = "required"
	}
	if p.HeartRate != nil && (*p.HeartRate < 30 || *p.HeartRate > 200) {
		fields["heart_rate"] = "must be between 30 and 200"
	}
	if p.SpO2 != nil && (*p.SpO2 < 0 || *p.SpO2 > 100) {
		fields["spo2"] = "must be between 0 and 100"
	}
	if p.Temperature != nil && (*p.Temperature < 30 || *p.Temperature > 45) {
		fields["temperature"] = "must be between 30 and 45"
	}
	if p.Latitude != nil && (*p.Latitude < -90 || *p.Latitude > 90) {
		fields["latitude"] = "must be between -90 and 90"
	}
	if p.Longitude != nil && (*p.Longitude < -180 || *p.Longitude > 180) {
		fields["longitude"] = "must be between -180 and 180"
	}
	if p.GPSAccuracy != nil && *p.GPSAccuracy < 0 {
		fields["gps_accuracy"] = "must be non-negative"
	}
	if p.CO != nil && *p.CO < 0 {
		fields["co"] = "must be non-negative"
	}
	if p.H2S != nil && *p.H2S < 0 {
		fields["h2s"] = "must be non-negative"
	}
	if p.CH4 != nil && *p.CH4 < 0 {
		fields["ch4"] = "must be non-negative"
	}

	if len(fields) > 0 {
		return apperr.New(apperr.Validation, "invalid device payload").WithFields(fields)
	}
	return nil
}

// Result is what the pipeline returns after a sample commits: the
// persisted reading, every alert it derived, and the attendance row if the
// sample caused one (spec.md §4.F: "if attendance changed").
type Result struct {
	Reading          store.Reading
	Alerts           []store.Alert
	Attendance       *store.AttendanceDay
	AttendanceBefore *store.AttendanceDay
}

// Pipeline orchestrates components A (store), C (threshold), and E
// (attendance) under one transaction, then publishes to the event bus
// (component G) once that transaction has committed.
type Pipeline struct {
	store      *store.Store
	attendance *attendance.Machine
	hub        *eventbus.Hub
	policy     threshold.Policy
}

// New creates the ingestion pipeline.
func New(st *store.Store, att *attendance.Machine, hub *eventbus.Hub, policy threshold.Policy) *Pipeline {
	return &Pipeline{store: st, attendance: att, hub: hub, policy: policy}
}

// Ingest runs the critical path in spec.md §4.F for one device sample.
// Device lookup failure returns apperr.NotFound before any write starts.
// The reading, its derived alerts, and the attendance transition commit
// together in a single transaction; fan-out happens only after that commit
// succeeds and never rolls it back on failure (spec.md §4.F contracts).
func (p *Pipeline) Ingest(ctx context.Context, payload Payload) (Result, error) {
	if err := Validate(payload); err != nil {
		return Result{}, err
	}

	device, err := p.store.FindDeviceBySerial(ctx, p.store.Pool(), payload.DeviceSerial)
	if err != nil {
		return Result{}, err
	}

	ts := time.Now().UTC()
	if payload.Timestamp != nil {
		ts = *payload.Timestamp
	}

	var result Result
	err = p.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		reading := store.Reading{
			DeviceID:     device.ID,
			Timestamp:    ts,
			HeartRate:    payload.HeartRate,
			SpO2:         payload.SpO2,
			Temperature:  payload.Temperature,
			Latitude:     payload.Latitude,
			Longitude:    payload.Longitude,
			GPSAccuracy:  payload.GPSAccuracy,
			FallDetected: payload.FallDetected,
			CO:           payload.CO,
			H2S:          payload.H2S,
			CH4:          payload.CH4,
		}
		stored, err := p.store.InsertReading(ctx, tx, reading)
		if err != nil {
			return err
		}
		result.Reading = stored

		if err := p.store.TouchDevice(ctx, tx, device.ID, ts, payload.BatteryLevel); err != nil {
			return err
		}

		candidates := threshold.Evaluate(p.policy, stored)
		for _, c := range candidates {
			value := c.Value
			thresh := c.Threshold
			alert, err := p.store.InsertAlert(ctx, tx, store.Alert{
				DeviceID:  device.ID,
				UserID:    device.UserID,
				VitalID:   &stored.ID,
				Type:      c.Type,
				Severity:  c.Severity,
				Message:   c.Message,
				Value:     &value,
				Threshold: &thresh,
				Timestamp: ts,
			})
			if err != nil {
				return err
			}
			result.Alerts = append(result.Alerts, alert)
		}

		before, err := p.attendance.GetForUpdate(ctx, tx, device.UserID, p.attendance.DateFor(ts))
		if err != nil {
			ae, ok := apperr.As(err)
			if !ok || ae.Kind != apperr.NotFound {
				return err
			}
		} else {
			result.AttendanceBefore = &before
		}

		updated, err := p.attendance.ApplyTx(ctx, tx, device.UserID, ts)
		if err != nil {
			return err
		}
		result.Attendance = &updated

		return nil
	})
	if err != nil {
		return Result{}, err
	}

	telemetry.ReadingsIngestedTotal.Inc()
	for _, a := range result.Alerts {
		telemetry.AlertsDerivedTotal.WithLabelValues(a.Type, a.Severity).Inc()
	}

	p.publish(device.UserID, result)
	return result, nil
}

// publish fans out the committed result. Every send is best-effort: a slow
// or disconnected subscriber never affects the caller (spec.md §4.F:
// "Fan-out failure ... must not roll back the commit").
func (p *Pipeline) publish(userID uuid.UUID, result Result) {
	if p.hub == nil {
		return
	}

	p.hub.Broadcast(eventbus.VitalsRoom(userID), eventbus.NewEvent("vital_update", result.Reading))
	p.hub.Broadcast(eventbus.RoomSupervisors, eventbus.NewEvent("vital_update", result.Reading))

	for _, a := range result.Alerts {
		ev := eventbus.NewEvent("new_alert", a)
		p.hub.Broadcast(eventbus.UserRoom(a.UserID), ev)
		p.hub.Broadcast(eventbus.RoomSupervisors, ev)
		if a.Severity == store.SeverityCritical {
			p.hub.Broadcast(eventbus.RoomSupervisors, eventbus.NewEvent("critical_alert", criticalAlert{
				Alert:             a,
				RequiresImmediate: true,
			}))
		}
	}

	if attendanceChanged(result.AttendanceBefore, result.Attendance) {
		ev := eventbus.NewEvent("attendance_update", result.Attendance)
		p.hub.Broadcast(eventbus.UserRoom(userID), ev)
		p.hub.Broadcast(eventbus.RoomSupervisors, ev)
	}

	if result.Reading.Latitude != nil && result.Reading.Longitude != nil {
		p.hub.Broadcast(eventbus.RoomSupervisors, eventbus.NewEvent("location_update", locationUpdate{
			UserID:    userID,
			Latitude:  *result.Reading.Latitude,
			Longitude: *result.Reading.Longitude,
			Timestamp: result.Reading.Timestamp,
		}))
	}
}

type criticalAlert struct {
	store.Alert
	RequiresImmediate bool `json:"requires_immediate"`
}

type locationUpdate struct {
	UserID    uuid.UUID `json:"user_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// attendanceChanged reports whether the attendance row materially differs
// from what it was before this sample (spec.md §4.F: "if attendance
// changed"), so a reading that neither opens nor closes a shift doesn't
// spuriously publish an AttendanceUpdate.
func attendanceChanged(before, after *store.AttendanceDay) bool {
	if after == nil {
		return false
	}
	if before == nil {
		return true
	}
	if !timePtrEqual(before.CheckInTime, after.CheckInTime) {
		return true
	}
	if !timePtrEqual(before.CheckOutTime, after.CheckOutTime) {
		return true
	}
	return before.Status != after.Status
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
