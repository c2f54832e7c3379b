// Package auth implements identity and authorisation (spec component B):
// registration, login, token issuance/validation, and the allow()
// predicate shared by the HTTP and socket facades.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognised by the system (spec.md §3).
const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
)

// IsValidRole reports whether role is one of the two recognised roles.
func IsValidRole(role string) bool {
	return role == RoleEmployee || role == RoleSupervisor
}

// Token kinds, distinguishing what a JWT is allowed to be used for. A
// refresh token cannot authenticate an API call, and a socket token
// cannot be exchanged for a new refresh token.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
	TokenKindSocket  = "socket"
)

// Identity is the authenticated caller attached to a request or socket
// connection's context.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IsSupervisor reports whether id holds the supervisor role.
func (id *Identity) IsSupervisor() bool {
	return id != nil && id.Role == RoleSupervisor
}

type ctxKey string

const identityKey ctxKey = "sentry_identity"

// NewContext stores id in ctx.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from ctx, or nil if none is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
