package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/auth"
)

// ownerFilter returns the user ID a list query should be scoped to: nil
// for a supervisor (sees everyone), the caller's own ID otherwise
// (spec.md §4.B: employees may only read their own data).
func ownerFilter(actor *auth.Identity) *uuid.UUID {
	if actor.IsSupervisor() {
		return nil
	}
	return &actor.UserID
}

// forbiddenSupervisorOnly is the standard error for a route restricted to
// the supervisor role.
func forbiddenSupervisorOnly(action string) error {
	return apperr.New(apperr.Forbidden, "only a supervisor may "+action)
}

// resolveTargetUser resolves the effective user ID for a per-user read: an
// employee may only ever target themselves, regardless of what the URL
// param says; a supervisor may target whatever the param names, falling
// back to "self" if none is given.
func resolveTargetUser(actor *auth.Identity, param string) (uuid.UUID, error) {
	if param == "" {
		return actor.UserID, nil
	}
	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.UUID{}, apperr.New(apperr.Validation, "invalid user id")
	}
	if !auth.Allow(auth.ActionRead, actor, auth.Target{OwnerUserID: id}) {
		return uuid.UUID{}, apperr.New(apperr.Forbidden, "cannot view another user's data")
	}
	return id, nil
}

// urlUUID parses a chi URL param as a UUID.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.UUID{}, apperr.New(apperr.Validation, "invalid "+name)
	}
	return id, nil
}

// urlUUIDFromString parses an arbitrary string as a UUID, for fields
// carried in a request body rather than the URL.
func urlUUIDFromString(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, apperr.New(apperr.Validation, "invalid user_id")
	}
	return id, nil
}

// timeNow returns the current time in UTC. A thin wrapper kept so
// handlers never call time.Now directly, for consistency with the
// lifecycle managers' injectable clocks.
func timeNow() time.Time {
	return time.Now().UTC()
}

// urlDate parses a chi URL param as a calendar date (YYYY-MM-DD), per
// spec.md §6's "/date/:date"-style routes.
func urlDate(r *http.Request, name string) (time.Time, error) {
	raw := chi.URLParam(r, name)
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, "invalid date, expected YYYY-MM-DD")
	}
	return t, nil
}

// queryTime parses an optional RFC3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid "+name+", expected RFC3339")
	}
	return &t, nil
}

// queryInt parses an optional integer query parameter, returning def if
// absent or invalid.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// queryDays parses a "?days=" lookback window, defaulting to def days.
func queryDays(r *http.Request, def int) time.Duration {
	return time.Duration(queryInt(r, "days", def)) * 24 * time.Hour
}
