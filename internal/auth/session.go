package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/sentrywear/sentry/internal/apperr"
)

const tokenIssuer = "sentry"

// Claims are the claims embedded in every self-issued JWT.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Kind   string `json:"kind"` // one of the TokenKind* constants
}

// TokenManager issues and validates HMAC-SHA256 access, refresh, and
// socket-handshake tokens (spec.md §4.B, §6). A single access secret signs
// both access and socket tokens since a socket token is just a
// short-lived access token handed to client JS that cannot read an
// HttpOnly cookie; the refresh token uses its own secret so that leaking
// one never compromises the other.
type TokenManager struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	socketTTL  time.Duration
}

// NewTokenManager creates a token manager. Both secrets must be at least
// 32 bytes.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if len(accessSecret) < 32 {
		return nil, fmt.Errorf("access token secret must be at least 32 bytes, got %d", len(accessSecret))
	}
	if len(refreshSecret) < 32 {
		return nil, fmt.Errorf("refresh token secret must be at least 32 bytes, got %d", len(refreshSecret))
	}
	return &TokenManager{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		socketTTL:  2 * time.Minute,
	}, nil
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret for dev mode.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

func (tm *TokenManager) sign(key []byte, claims Claims, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   claims.UserID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// IssueAccessToken issues a bearer access token (default TTL 24h).
func (tm *TokenManager) IssueAccessToken(userID, email, role string) (string, error) {
	return tm.sign(tm.accessKey, Claims{UserID: userID, Email: email, Role: role, Kind: TokenKindAccess}, tm.accessTTL)
}

// IssueRefreshToken issues a long-lived refresh token (default TTL 7d).
func (tm *TokenManager) IssueRefreshToken(userID, email, role string) (string, error) {
	return tm.sign(tm.refreshKey, Claims{UserID: userID, Email: email, Role: role, Kind: TokenKindRefresh}, tm.refreshTTL)
}

// IssueSocketToken issues a short-lived token for the WebSocket handshake,
// used because the browser cannot attach an Authorization header to the
// initial upgrade request and has no access to an HttpOnly session cookie.
func (tm *TokenManager) IssueSocketToken(userID, email, role string) (string, error) {
	return tm.sign(tm.accessKey, Claims{UserID: userID, Email: email, Role: role, Kind: TokenKindSocket}, tm.socketTTL)
}

func (tm *TokenManager) validate(key []byte, raw string, wantKind string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, "parsing token", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(key, &registered, &custom); err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, "invalid token signature", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer}, 5*time.Second); err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, "token expired or not yet valid", err)
	}
	if custom.Kind != wantKind {
		return nil, apperr.New(apperr.Unauthenticated, "wrong token kind")
	}
	return &custom, nil
}

// ValidateAccessToken validates a bearer access token used by the HTTP facade.
func (tm *TokenManager) ValidateAccessToken(raw string) (*Claims, error) {
	return tm.validate(tm.accessKey, raw, TokenKindAccess)
}

// ValidateRefreshToken validates a refresh token presented to the refresh endpoint.
func (tm *TokenManager) ValidateRefreshToken(raw string) (*Claims, error) {
	return tm.validate(tm.refreshKey, raw, TokenKindRefresh)
}

// ValidateSocketToken validates the short-lived token presented in the
// WebSocket handshake (Authorization header or the first JSON frame).
func (tm *TokenManager) ValidateSocketToken(raw string) (*Claims, error) {
	return tm.validate(tm.accessKey, raw, TokenKindSocket)
}
