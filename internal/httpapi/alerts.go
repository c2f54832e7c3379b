package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/httpserver"
	"github.com/sentrywear/sentry/internal/store"
)

// parseAlertFilters builds a store.AlertFilter from query parameters,
// mirroring the teacher's parseAlertFilters shape (spec.md §6).
func parseAlertFilters(r *http.Request) (store.AlertFilter, error) {
	f := store.AlertFilter{
		Severity: r.URL.Query().Get("severity"),
		Type:     r.URL.Query().Get("type"),
		Limit:    queryInt(r, "limit", httpserver.DefaultPageSize),
		Offset:   queryInt(r, "offset", 0),
	}

	after, err := queryTime(r, "after")
	if err != nil {
		return f, err
	}
	f.After = after

	before, err := queryTime(r, "before")
	if err != nil {
		return f, err
	}
	f.Before = before

	if v := r.URL.Query().Get("acknowledged"); v != "" {
		b := v == "true"
		f.Acknowledged = &b
	}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b := v == "true"
		f.Resolved = &b
	}

	return f, nil
}

func (h *Handler) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	f, err := parseAlertFilters(r)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	alerts, err := h.alerts.List(r.Context(), id, f)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleAlertsUnacknowledged(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	f, err := parseAlertFilters(r)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	unacked := false
	f.Acknowledged = &unacked

	alerts, err := h.alerts.List(r.Context(), id, f)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleAlertsCritical(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	f, err := parseAlertFilters(r)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	f.Severity = store.SeverityCritical

	alerts, err := h.alerts.List(r.Context(), id, f)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleAlertsStats(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	stats, err := h.alerts.Stats(r.Context(), id, nil)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, stats)
}

// handleAlertsTrends reuses Stats: spec.md's Non-goals exclude historical
// analytics beyond simple aggregates, so there is no time-bucketed trend
// entity behind this route.
func (h *Handler) handleAlertsTrends(w http.ResponseWriter, r *http.Request) {
	h.handleAlertsStats(w, r)
}

func (h *Handler) handleAlertsHourly(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("view hourly alert trends"))
		return
	}

	date, err := urlDate(r, "date")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	counts, err := h.alerts.HourlyCounts(r.Context(), id, date)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"date": date.Format("2006-01-02"), "hourly_counts": counts})
}

func (h *Handler) handleAlertsByUser(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	userID, err := resolveTargetUser(id, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	f, err := parseAlertFilters(r)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	f.UserID = &userID

	alerts, err := h.alerts.List(r.Context(), id, f)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleAlertsGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	alertID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	alert, err := h.store.GetAlert(r.Context(), h.store.Pool(), alertID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	if !auth.Allow(auth.ActionRead, id, auth.Target{OwnerUserID: alert.UserID}) {
		httpserver.RespondAppErr(w, h.logger, apperr.New(apperr.Forbidden, "cannot view another user's alert"))
		return
	}

	httpserver.Respond(w, http.StatusOK, alert)
}

type bulkAcknowledgeRequest struct {
	AlertIDs []uuid.UUID `json:"alert_ids" validate:"required,min=1"`
}

func (h *Handler) handleAlertsBulkAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req bulkAcknowledgeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	acked, err := h.alerts.BulkAcknowledge(r.Context(), id, req.AlertIDs)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"acknowledged": acked, "count": len(acked)})
}

func (h *Handler) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	alertID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	alert, err := h.alerts.Acknowledge(r.Context(), id, alertID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, alert)
}

func (h *Handler) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	alertID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	alert, err := h.alerts.Resolve(r.Context(), id, alertID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, alert)
}

func (h *Handler) handleAlertsCleanup(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	retention := queryDays(r, 90)
	n, err := h.alerts.Cleanup(r.Context(), id, retention)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) handleAlertsClearAll(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("clear all alerts"))
		return
	}

	n, err := h.store.ClearAllAlerts(r.Context(), h.store.Pool())
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]int64{"deleted": n})
}
