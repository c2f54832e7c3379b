package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/httpserver"
	"github.com/sentrywear/sentry/internal/store"
)

// locatedReadings returns readings scoped to userID (nil = everyone) that
// carry a latitude/longitude, most recent first.
func (h *Handler) locatedReadings(r *http.Request, userID *uuid.UUID) ([]store.Reading, error) {
	readings, err := h.store.ListReadings(r.Context(), h.store.Pool(), store.ReadingFilter{
		UserID: userID,
		Limit:  queryInt(r, "limit", httpserver.DefaultPageSize),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.Reading, 0, len(readings))
	for _, reading := range readings {
		if reading.Latitude != nil && reading.Longitude != nil {
			out = append(out, reading)
		}
	}
	return out, nil
}

func (h *Handler) handleLocationCurrent(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	located, err := h.locatedReadings(r, ownerFilter(id))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	latest := map[string]store.Reading{}
	for _, reading := range located {
		key := reading.DeviceID.String()
		if existing, ok := latest[key]; !ok || reading.Timestamp.After(existing.Timestamp) {
			latest[key] = reading
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"current": latest, "count": len(latest)})
}

func (h *Handler) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var target *uuid.UUID
	if param := chi.URLParam(r, "id"); param != "" {
		resolved, err := resolveTargetUser(id, param)
		if err != nil {
			httpserver.RespondAppErr(w, h.logger, err)
			return
		}
		target = &resolved
	} else {
		target = ownerFilter(id)
	}

	located, err := h.locatedReadings(r, target)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"readings": located, "count": len(located)})
}

// handleLocationTrack is the single-user path of the same location
// history read (spec.md §6 "/location/track/:id").
func (h *Handler) handleLocationTrack(w http.ResponseWriter, r *http.Request) {
	h.handleLocationHistory(w, r)
}

// handleLocationZone reports whether the named user's most recent
// location falls within an ad-hoc circular geofence supplied as query
// parameters; geofences are never persisted (spec.md Non-goals).
func (h *Handler) handleLocationZone(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	userID, err := resolveTargetUser(id, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	devices, err := h.store.ListDevices(r.Context(), h.store.Pool(), &userID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	centerLat := queryFloat(r, "lat", 0)
	centerLng := queryFloat(r, "lng", 0)
	radiusM := queryFloat(r, "radius_m", 100)

	inZone := false
	for _, d := range devices {
		reading, err := h.store.LatestReadingForDevice(r.Context(), h.store.Pool(), d.ID)
		if err != nil || reading.Latitude == nil || reading.Longitude == nil {
			continue
		}
		if haversineMeters(centerLat, centerLng, *reading.Latitude, *reading.Longitude) <= radiusM {
			inZone = true
			break
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"user_id": userID, "in_zone": inZone})
}

func (h *Handler) handleLocationSummary(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	located, err := h.locatedReadings(r, ownerFilter(id))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"located_readings": len(located)})
}

// handleLocationHeatmap buckets located readings into a coarse lat/lng
// grid. Spec.md's Non-goals exclude historical analytics beyond simple
// aggregates, so this is a point-density count rather than a persisted
// heatmap entity.
func (h *Handler) handleLocationHeatmap(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("view the location heatmap"))
		return
	}

	located, err := h.locatedReadings(r, nil)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	const cell = 0.01 // roughly 1km grid cells
	buckets := map[string]int{}
	for _, reading := range located {
		key := bucketKey(*reading.Latitude, *reading.Longitude, cell)
		buckets[key]++
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"cells": buckets})
}

type geofenceRequest struct {
	Latitude  float64     `json:"latitude" validate:"required"`
	Longitude float64     `json:"longitude" validate:"required"`
	Polygon   [][2]float64 `json:"polygon" validate:"required,min=3"`
}

// handleLocationGeofence checks a single point-in-polygon query against a
// polygon supplied in the request; spec.md's Non-goals exclude geofence
// persistence, so there is no saved geofence entity behind this route.
func (h *Handler) handleLocationGeofence(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("run an ad-hoc geofence check"))
		return
	}

	var req geofenceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	inside := pointInPolygon(req.Latitude, req.Longitude, req.Polygon)
	httpserver.Respond(w, http.StatusOK, map[string]any{"inside": inside})
}

// pointInPolygon implements the standard ray-casting test.
func pointInPolygon(lat, lng float64, polygon [][2]float64) bool {
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, xi := polygon[i][0], polygon[i][1]
		yj, xj := polygon[j][0], polygon[j][1]
		intersects := (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}

// haversineMeters computes the great-circle distance between two
// lat/lng pairs in meters.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusM = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

func bucketKey(lat, lng, cell float64) string {
	bLat := math.Floor(lat/cell) * cell
	bLng := math.Floor(lng/cell) * cell
	return fmt.Sprintf("%.2f,%.2f", bLat, bLng)
}

// queryFloat parses an optional float query parameter, returning def if
// absent or invalid.
func queryFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
