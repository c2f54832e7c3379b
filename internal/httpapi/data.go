package httpapi

import (
	"net/http"
	"time"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/httpserver"
	"github.com/sentrywear/sentry/internal/ingest"
	"github.com/sentrywear/sentry/internal/store"
)

// deviceReadingRequest mirrors ingest.Payload over the wire (spec.md §6
// "Device payload").
type deviceReadingRequest struct {
	DeviceSerial string     `json:"device_serial" validate:"required"`
	HeartRate    *int       `json:"heart_rate,omitempty"`
	SpO2         *int       `json:"spo2,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	GPSAccuracy  *float64   `json:"gps_accuracy,omitempty"`
	FallDetected bool       `json:"fall_detected,omitempty"`
	CO           *float64   `json:"co,omitempty"`
	H2S          *float64   `json:"h2s,omitempty"`
	CH4          *float64   `json:"ch4,omitempty"`
	BatteryLevel *int       `json:"battery_level,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// handleIngest is the single unauthenticated device write path (spec.md
// §4.F, §6 "POST /data").
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req deviceReadingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.ingest.Ingest(r.Context(), ingest.Payload{
		DeviceSerial: req.DeviceSerial,
		HeartRate:    req.HeartRate,
		SpO2:         req.SpO2,
		Temperature:  req.Temperature,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		GPSAccuracy:  req.GPSAccuracy,
		FallDetected: req.FallDetected,
		CO:           req.CO,
		H2S:          req.H2S,
		CH4:          req.CH4,
		BatteryLevel: req.BatteryLevel,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"reading":    result.Reading,
		"alerts":     result.Alerts,
		"attendance": result.Attendance,
	})
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	devices, err := h.store.ListDevices(r.Context(), h.store.Pool(), ownerFilter(id))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("list employees"))
		return
	}

	employees, err := h.store.ListUsers(r.Context(), h.store.Pool(), store.RoleEmployee)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"employees": employees, "count": len(employees)})
}
