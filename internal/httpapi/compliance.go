package httpapi

import (
	"net/http"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/httpserver"
	"github.com/sentrywear/sentry/internal/store"
)

func (h *Handler) handleComplianceList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	records, err := h.store.ListComplianceRecords(r.Context(), h.store.Pool(), ownerFilter(id))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (h *Handler) handleComplianceUnreviewed(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("view unreviewed compliance records"))
		return
	}

	records, err := h.store.ListComplianceRecords(r.Context(), h.store.Pool(), nil)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	unreviewed := make([]store.ComplianceRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Reviewed {
			unreviewed = append(unreviewed, rec)
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"records": unreviewed, "count": len(unreviewed)})
}

func (h *Handler) handleComplianceHighRisk(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("view high-risk compliance records"))
		return
	}

	records, err := h.store.ListComplianceRecords(r.Context(), h.store.Pool(), nil)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	highRisk := make([]store.ComplianceRecord, 0, len(records))
	for _, rec := range records {
		if rec.RiskLevel == store.RiskHigh {
			highRisk = append(highRisk, rec)
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"records": highRisk, "count": len(highRisk)})
}

func (h *Handler) handleComplianceStats(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	records, err := h.store.ListComplianceRecords(r.Context(), h.store.Pool(), ownerFilter(id))
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	stats := map[string]int{"total": len(records), "reviewed": 0, "unreviewed": 0,
		store.RiskLow: 0, store.RiskMedium: 0, store.RiskHigh: 0}
	for _, rec := range records {
		if rec.Reviewed {
			stats["reviewed"]++
		} else {
			stats["unreviewed"]++
		}
		stats[rec.RiskLevel]++
	}

	httpserver.Respond(w, http.StatusOK, stats)
}

// handleComplianceTrends reuses Stats: spec.md's Non-goals exclude
// historical analytics beyond simple aggregates.
func (h *Handler) handleComplianceTrends(w http.ResponseWriter, r *http.Request) {
	h.handleComplianceStats(w, r)
}

func (h *Handler) handleComplianceGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	recordID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	record, err := h.store.GetComplianceRecord(r.Context(), h.store.Pool(), recordID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	if !auth.Allow(auth.ActionRead, id, auth.Target{OwnerUserID: record.UserID}) {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("view another user's compliance record"))
		return
	}

	httpserver.Respond(w, http.StatusOK, record)
}

type createComplianceRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	Title     string `json:"title" validate:"required"`
	Narrative string `json:"narrative" validate:"required"`
	RiskLevel string `json:"risk_level" validate:"required,oneof=low medium high"`
}

func (h *Handler) handleComplianceCreate(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("create a compliance record"))
		return
	}

	var req createComplianceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	userID, err := urlUUIDFromString(req.UserID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	record, err := h.store.CreateComplianceRecord(r.Context(), h.store.Pool(), userID, req.Title, req.Narrative, req.RiskLevel)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, record)
}

func (h *Handler) handleComplianceReview(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("review a compliance record"))
		return
	}

	recordID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	record, err := h.store.ReviewComplianceRecord(r.Context(), h.store.Pool(), recordID, id.UserID, timeNow())
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, record)
}

// handleComplianceAssign acknowledges a hand-off of a record to the
// reviewing supervisor. The data model (spec.md §3) tracks only who
// reviewed a record, not a separate assignee, so this does not add a new
// persisted field: it returns the record as-is once the caller is
// confirmed to be a supervisor, the same contract the review route
// fulfils once review actually happens.
func (h *Handler) handleComplianceAssign(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.IsSupervisor() {
		httpserver.RespondAppErr(w, h.logger, forbiddenSupervisorOnly("assign a compliance record"))
		return
	}

	recordID, err := urlUUID(r, "id")
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	record, err := h.store.GetComplianceRecord(r.Context(), h.store.Pool(), recordID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, record)
}
