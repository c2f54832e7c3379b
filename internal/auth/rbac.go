package auth

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/apperr"
)

// Action identifies the kind of operation Allow is asked to authorise.
// Supervisor-only actions are listed explicitly; every other action falls
// back to the ownership rule.
type Action string

const (
	ActionRead             Action = "read"
	ActionAcknowledge      Action = "acknowledge"
	ActionResolve          Action = "resolve"
	ActionBulkAcknowledge  Action = "bulk_acknowledge"
	ActionReviewCompliance Action = "review_compliance"
	ActionDeleteCompliance Action = "delete_compliance"
	ActionCleanup          Action = "cleanup"
	ActionRunSweep         Action = "run_sweep"
	ActionManageUsers      Action = "manage_users"
	ActionManageDevices    Action = "manage_devices"
)

// supervisorOnly lists actions no employee may ever perform, regardless of
// ownership (spec.md §4.B: "destructive or policy operations").
var supervisorOnly = map[Action]bool{
	ActionResolve:          true,
	ActionReviewCompliance: true,
	ActionDeleteCompliance: true,
	ActionCleanup:          true,
	ActionRunSweep:         true,
	ActionManageUsers:      true,
	ActionManageDevices:    true,
}

// Target describes the resource an action is performed against.
type Target struct {
	// OwnerUserID is the user_id the target resource belongs to. Zero value
	// is only valid for actions that don't carry per-user ownership (e.g.
	// ActionRunSweep, which targets a whole day rather than one user).
	OwnerUserID uuid.UUID
}

// Allow centralises every role rule in the system (spec.md §4.B). Employees
// may read or mutate only resources they own; supervisors can read
// everything and are the sole actors for destructive or policy operations.
// The same predicate backs both the HTTP facade and the Socket Facade.
func Allow(action Action, actor *Identity, target Target) bool {
	if actor == nil {
		return false
	}
	if actor.IsSupervisor() {
		return true
	}
	if supervisorOnly[action] {
		return false
	}
	return actor.UserID == target.OwnerUserID
}

// RequireAuth rejects requests with no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			writeErr(w, apperr.New(apperr.Unauthenticated, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisor rejects requests whose identity is not a supervisor.
// Used for routes that are supervisor-only regardless of target ownership
// (e.g. user management, manual sweep trigger).
func RequireSupervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			writeErr(w, apperr.New(apperr.Unauthenticated, "authentication required"))
			return
		}
		if !id.IsSupervisor() {
			writeErr(w, apperr.New(apperr.Forbidden, "supervisor role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
