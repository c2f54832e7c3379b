package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestAllow(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	employee := &Identity{UserID: owner, Role: RoleEmployee}
	supervisor := &Identity{UserID: other, Role: RoleSupervisor}

	tests := []struct {
		name   string
		action Action
		actor  *Identity
		target Target
		want   bool
	}{
		{"employee reads own", ActionRead, employee, Target{OwnerUserID: owner}, true},
		{"employee reads other's", ActionRead, employee, Target{OwnerUserID: other}, false},
		{"employee acknowledges own", ActionAcknowledge, employee, Target{OwnerUserID: owner}, true},
		{"employee acknowledges other's", ActionAcknowledge, employee, Target{OwnerUserID: other}, false},
		{"employee cannot resolve own", ActionResolve, employee, Target{OwnerUserID: owner}, false},
		{"employee cannot bulk cleanup", ActionCleanup, employee, Target{}, false},
		{"supervisor reads any", ActionRead, supervisor, Target{OwnerUserID: owner}, true},
		{"supervisor resolves any", ActionResolve, supervisor, Target{OwnerUserID: owner}, true},
		{"supervisor runs sweep", ActionRunSweep, supervisor, Target{}, true},
		{"nil actor never allowed", ActionRead, nil, Target{OwnerUserID: owner}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allow(tt.action, tt.actor, tt.target); got != tt.want {
				t.Errorf("Allow(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		RequireAuth(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("passes authenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := NewContext(r.Context(), &Identity{UserID: uuid.New(), Role: RoleEmployee})
		r = r.WithContext(ctx)
		w := httptest.NewRecorder()

		RequireAuth(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestRequireSupervisor(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		identity *Identity
		wantCode int
	}{
		{"no identity", nil, http.StatusUnauthorized},
		{"employee rejected", &Identity{Role: RoleEmployee}, http.StatusForbidden},
		{"supervisor allowed", &Identity{Role: RoleSupervisor}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				r = r.WithContext(NewContext(r.Context(), tt.identity))
			}
			w := httptest.NewRecorder()

			RequireSupervisor(okHandler).ServeHTTP(w, r)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role  string
		valid bool
	}{
		{RoleEmployee, true},
		{RoleSupervisor, true},
		{"admin", false},
		{"", false},
		{"Employee", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.valid {
				t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.valid)
			}
		})
	}
}
