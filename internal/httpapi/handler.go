// Package httpapi is the HTTP Facade (spec component H): a thin chi router
// layer translating requests into calls on the Store Gateway and the
// component managers, and responses back into the wire shapes in spec.md
// §6. It holds no business logic of its own beyond request parsing, role
// checks delegated to auth.Allow, and response shaping.
package httpapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/sentrywear/sentry/internal/alertlifecycle"
	"github.com/sentrywear/sentry/internal/attendance"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/eventbus"
	"github.com/sentrywear/sentry/internal/ingest"
	"github.com/sentrywear/sentry/internal/store"
)

// Handler wires the HTTP facade to every component it fronts.
type Handler struct {
	logger      *slog.Logger
	store       *store.Store
	auth        *auth.Service
	ingest      *ingest.Pipeline
	alerts      *alertlifecycle.Manager
	attendance  *attendance.Machine
	hub         *eventbus.Hub
	rateLimiter *auth.RateLimiter
}

// NewHandler creates the HTTP facade. rateLimiter may be nil, in which case
// register/login are not rate-limited (e.g. in tests).
func NewHandler(
	logger *slog.Logger,
	st *store.Store,
	authSvc *auth.Service,
	pipeline *ingest.Pipeline,
	alerts *alertlifecycle.Manager,
	att *attendance.Machine,
	hub *eventbus.Hub,
	rateLimiter *auth.RateLimiter,
) *Handler {
	return &Handler{
		logger:      logger,
		store:       st,
		auth:        authSvc,
		ingest:      pipeline,
		alerts:      alerts,
		attendance:  att,
		hub:         hub,
		rateLimiter: rateLimiter,
	}
}

// PublicRoutes returns the unauthenticated routes: account creation/login
// and the device ingest endpoint (spec.md §6: "public (device)"). Mount
// this directly on the server's root router, ahead of the auth middleware.
// Register and login are rate-limited per client IP, the only ingress-level
// enforcement spec.md §4.H calls for ("the core does not rate-limit").
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(h.rateLimit).Post("/auth/register", h.handleRegister)
	r.With(h.rateLimit).Post("/auth/login", h.handleLogin)
	r.Post("/auth/refresh", h.handleRefresh)
	r.Post("/data", h.handleIngest)
	return r
}

// Routes returns the authenticated routes. Mount this on a router that
// already carries auth.Middleware and auth.RequireAuth (spec.md §4.H).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/change-password", h.handleChangePassword)
	r.Get("/auth/me", h.handleMe)
	r.Get("/auth/validate-token", h.handleValidateToken)
	r.Post("/auth/logout", h.handleLogout)

	r.Get("/data/devices", h.handleListDevices)
	r.Get("/data/employees", h.handleListEmployees)

	r.Route("/vitals", func(r chi.Router) {
		r.Get("/latest", h.handleVitalsLatest)
		r.Get("/history", h.handleVitalsHistory)
		r.Get("/device/{id}", h.handleVitalsByDevice)
		r.Get("/abnormal", h.handleVitalsAbnormal)
		r.Get("/stats", h.handleVitalsStats)
		r.Get("/stats/{id}", h.handleVitalsStats)
		r.Get("/trends", h.handleVitalsTrends)
		r.Get("/trends/{id}", h.handleVitalsTrends)
		r.Get("/locations", h.handleVitalsLocations)
		r.Get("/summary", h.handleVitalsSummary)
		r.Delete("/cleanup", h.handleVitalsCleanup)
		r.Delete("/clear-all", h.handleVitalsClearAll)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.handleAlertsList)
		r.Get("/unacknowledged", h.handleAlertsUnacknowledged)
		r.Get("/critical", h.handleAlertsCritical)
		r.Get("/stats", h.handleAlertsStats)
		r.Get("/trends", h.handleAlertsTrends)
		r.Get("/hourly/{date}", h.handleAlertsHourly)
		r.Get("/user/{id}", h.handleAlertsByUser)
		r.Get("/{id}", h.handleAlertsGet)
		r.Post("/acknowledge", h.handleAlertsBulkAcknowledge)
		r.Put("/{id}/acknowledge", h.handleAlertAcknowledge)
		r.Put("/{id}/resolve", h.handleAlertResolve)
		r.Delete("/cleanup", h.handleAlertsCleanup)
		r.Delete("/clear-all", h.handleAlertsClearAll)
	})

	r.Route("/location", func(r chi.Router) {
		r.Get("/current", h.handleLocationCurrent)
		r.Get("/history", h.handleLocationHistory)
		r.Get("/history/{id}", h.handleLocationHistory)
		r.Get("/track/{id}", h.handleLocationTrack)
		r.Get("/zone/{id}", h.handleLocationZone)
		r.Get("/summary", h.handleLocationSummary)
		r.Get("/heatmap", h.handleLocationHeatmap)
		r.Post("/geofence", h.handleLocationGeofence)
	})

	r.Route("/attendance", func(r chi.Router) {
		r.Get("/today", h.handleAttendanceToday)
		r.Get("/history", h.handleAttendanceHistory)
		r.Get("/history/{id}", h.handleAttendanceHistory)
		r.Get("/date/{date}", h.handleAttendanceByDate)
		r.Get("/summary", h.handleAttendanceSummary)
		r.Get("/stats", h.handleAttendanceStats)
		r.Get("/late-arrivals/{date}", h.handleAttendanceLateArrivals)
		r.Get("/early-departures/{date}", h.handleAttendanceEarlyDepartures)
		r.Get("/overtime/{date}", h.handleAttendanceOvertime)
		r.Get("/trends", h.handleAttendanceTrends)
		r.Get("/user/{id}/calendar", h.handleAttendanceCalendar)
		r.Get("/export", h.handleAttendanceExport)
		r.Put("/{id}/{date}/status", h.handleAttendanceOverride)
		r.Post("/mark-absent/{date}", h.handleAttendanceMarkAbsent)
	})

	r.Route("/compliance", func(r chi.Router) {
		r.Get("/", h.handleComplianceList)
		r.Get("/unreviewed", h.handleComplianceUnreviewed)
		r.Get("/high-risk", h.handleComplianceHighRisk)
		r.Get("/stats", h.handleComplianceStats)
		r.Get("/trends", h.handleComplianceTrends)
		r.Get("/{id}", h.handleComplianceGet)
		r.Post("/", h.handleComplianceCreate)
		r.Post("/{id}/review", h.handleComplianceReview)
		r.Post("/{id}/assign", h.handleComplianceAssign)
	})

	return r
}
