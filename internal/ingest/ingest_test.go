package ingest

import (
	"testing"
	"time"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/store"
)

func intp(v int) *int         { return &v }
func f64p(v float64) *float64 { return &v }

func TestValidateAcceptsMinimalPayload(t *testing.T) {
	err := Validate(Payload{DeviceSerial: "WX-01"})
	if err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRequiresDeviceSerial(t *testing.T) {
	err := Validate(Payload{})
	assertField(t, err, "device_serial")
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		field   string
	}{
		{"heart rate too low", Payload{DeviceSerial: "d", HeartRate: intp(10)}, "heart_rate"},
		{"heart rate too high", Payload{DeviceSerial: "d", HeartRate: intp(250)}, "heart_rate"},
		{"spo2 negative", Payload{DeviceSerial: "d", SpO2: intp(-1)}, "spo2"},
		{"spo2 over 100", Payload{DeviceSerial: "d", SpO2: intp(101)}, "spo2"},
		{"temperature too low", Payload{DeviceSerial: "d", Temperature: f64p(10)}, "temperature"},
		{"temperature too high", Payload{DeviceSerial: "d", Temperature: f64p(50)}, "temperature"},
		{"latitude out of range", Payload{DeviceSerial: "d", Latitude: f64p(200)}, "latitude"},
		{"longitude out of range", Payload{DeviceSerial: "d", Longitude: f64p(-200)}, "longitude"},
		{"gps accuracy negative", Payload{DeviceSerial: "d", GPSAccuracy: f64p(-1)}, "gps_accuracy"},
		{"co negative", Payload{DeviceSerial: "d", CO: f64p(-1)}, "co"},
		{"h2s negative", Payload{DeviceSerial: "d", H2S: f64p(-1)}, "h2s"},
		{"ch4 negative", Payload{DeviceSerial: "d", CH4: f64p(-1)}, "ch4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertField(t, Validate(tt.payload), tt.field)
		})
	}
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error, got %v", err)
	}
	if ae.Kind != apperr.Validation {
		t.Fatalf("Kind = %v, want Validation", ae.Kind)
	}
	if _, ok := ae.Fields[field]; !ok {
		t.Fatalf("expected field %q in %v", field, ae.Fields)
	}
}

func TestAttendanceChangedNilAfter(t *testing.T) {
	if attendanceChanged(nil, nil) {
		t.Error("expected no change when after is nil")
	}
}

func TestAttendanceChangedFirstRow(t *testing.T) {
	after := &store.AttendanceDay{Status: store.AttendanceStatusPresent}
	if !attendanceChanged(nil, after) {
		t.Error("expected change when there was no prior row")
	}
}

func TestAttendanceChangedCheckOutTransition(t *testing.T) {
	checkIn := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)

	before := &store.AttendanceDay{CheckInTime: &checkIn, Status: store.AttendanceStatusPresent}
	after := &store.AttendanceDay{CheckInTime: &checkIn, CheckOutTime: &checkOut, Status: store.AttendanceStatusPresent}

	if !attendanceChanged(before, after) {
		t.Error("expected change when check-out time is newly set")
	}
}

func TestAttendanceChangedNoOp(t *testing.T) {
	checkIn := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	before := &store.AttendanceDay{CheckInTime: &checkIn, Status: store.AttendanceStatusPresent}
	after := &store.AttendanceDay{CheckInTime: &checkIn, Status: store.AttendanceStatusPresent}

	if attendanceChanged(before, after) {
		t.Error("expected no change for an identical row")
	}
}
