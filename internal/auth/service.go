package auth

import (
	"context"
	"net/mail"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentrywear/sentry/internal/apperr"
	"github.com/sentrywear/sentry/internal/store"
)

// bcryptCost is the KDF work factor (spec.md §4.B: "cost-parametrised KDF,
// work factor ≥ 12").
const bcryptCost = 12

// Service implements registration, login, and token refresh (spec component B).
type Service struct {
	store  *store.Store
	tokens *TokenManager
}

// NewService creates an auth service.
func NewService(st *store.Store, tokens *TokenManager) *Service {
	return &Service{store: st, tokens: tokens}
}

// TokenPair is the access/refresh token pair returned by Register and Login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ValidatePassword enforces the password policy: at least 8 characters
// containing an uppercase letter, a lowercase letter, a digit, and a
// symbol (spec.md §4.B).
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return apperr.New(apperr.Validation, "password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return apperr.New(apperr.Validation, "password must contain an uppercase letter, a lowercase letter, a digit, and a symbol")
	}
	return nil
}

// Register validates email format, password policy, and role, then
// creates the user with a bcrypt-hashed password. Returns Conflict if the
// email is already registered.
func (s *Service) Register(ctx context.Context, email, password, role string, department *string) (store.User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, apperr.New(apperr.Validation, "invalid email address")
	}
	if err := ValidatePassword(password); err != nil {
		return store.User{}, err
	}
	if !IsValidRole(role) {
		return store.User{}, apperr.New(apperr.Validation, "role must be employee or supervisor")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return store.User{}, apperr.Wrap(apperr.Internal, "hashing password", err)
	}

	return s.store.CreateUser(ctx, s.store.Pool(), email, string(hash), role, department)
}

// Login checks credentials with a constant-time comparison (bcrypt itself
// is constant-time in the password length it was built for) and, on
// success, issues an access/refresh token pair. Failure always returns
// Unauthenticated, never distinguishing "no such account" from "wrong
// password" (spec.md §4.B).
func (s *Service) Login(ctx context.Context, email, password string) (store.User, TokenPair, error) {
	user, err := s.store.FindUserByEmail(ctx, s.store.Pool(), email)
	if err != nil {
		// Still run a bcrypt comparison against a fixed hash so the response
		// latency for an unknown email matches that of a wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte(unknownAccountHash), []byte(password))
		return store.User{}, TokenPair{}, apperr.New(apperr.Unauthenticated, "invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, TokenPair{}, apperr.New(apperr.Unauthenticated, "invalid email or password")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return store.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// unknownAccountHash is a fixed bcrypt hash compared against on a
// nonexistent-email login, so the two failure paths take the same amount
// of work.
const unknownAccountHash = "$2a$12$CwTycUXWue0Thq9StjUM0uJ8lXIdI2rr.gt6V9A1vDvpO1ItFNwTG"

// Refresh validates a refresh token and issues a fresh access/refresh pair.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(rawRefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return TokenPair{}, apperr.New(apperr.Unauthenticated, "malformed refresh token")
	}
	user, err := s.store.FindUserByID(ctx, s.store.Pool(), id)
	if err != nil {
		return TokenPair{}, apperr.New(apperr.Unauthenticated, "unknown user")
	}
	return s.issueTokenPair(user)
}

// ChangePassword verifies oldPassword against the stored hash, enforces
// the password policy on newPassword, and persists the new hash.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.store.FindUserByID(ctx, s.store.Pool(), userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return apperr.New(apperr.Unauthenticated, "old password is incorrect")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "hashing password", err)
	}
	return s.store.UpdatePassword(ctx, s.store.Pool(), userID, string(hash))
}

// IssueSocketToken issues the short-lived token a connected client
// exchanges for a WebSocket upgrade (spec.md §6).
func (s *Service) IssueSocketToken(user store.User) (string, error) {
	return s.tokens.IssueSocketToken(user.ID.String(), user.Email, user.Role)
}

// AuthenticateSocketToken validates a socket handshake token and returns
// the resulting Identity (spec.md §4.B, shared with the HTTP path).
func (s *Service) AuthenticateSocketToken(raw string) (*Identity, error) {
	claims, err := s.tokens.ValidateSocketToken(raw)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperr.New(apperr.Unauthenticated, "malformed token subject")
	}
	return &Identity{UserID: id, Email: claims.Email, Role: claims.Role}, nil
}

func (s *Service) issueTokenPair(user store.User) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "issuing access token", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, "issuing refresh token", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
