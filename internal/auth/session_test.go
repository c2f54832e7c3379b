package auth

import (
	"strings"
	"testing"
	"time"
)

func testTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(
		"access-secret-at-least-32-bytes-long",
		"refresh-secret-at-least-32-bytes-l",
		time.Hour,
		24*time.Hour,
	)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return tm
}

func TestNewTokenManagerRejectsShortSecrets(t *testing.T) {
	if _, err := NewTokenManager("short", "also-too-short-refresh-secret-ok", time.Hour, time.Hour); err == nil {
		t.Fatal("expected error for short access secret")
	}
	if _, err := NewTokenManager("access-secret-at-least-32-bytes-long", "short", time.Hour, time.Hour); err == nil {
		t.Fatal("expected error for short refresh secret")
	}
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	tm := testTokenManager(t)

	token, err := tm.IssueAccessToken("user-1", "a@example.com", RoleEmployee)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	claims, err := tm.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != RoleEmployee {
		t.Errorf("claims = %+v, want user-1/%s", claims, RoleEmployee)
	}
}

func TestValidateAccessTokenRejectsRefreshToken(t *testing.T) {
	tm := testTokenManager(t)

	refresh, err := tm.IssueRefreshToken("user-1", "a@example.com", RoleEmployee)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	if _, err := tm.ValidateAccessToken(refresh); err == nil {
		t.Fatal("expected ValidateAccessToken to reject a refresh token")
	}
}

func TestValidateAccessTokenRejectsCrossSecret(t *testing.T) {
	tm1 := testTokenManager(t)
	tm2, err := NewTokenManager(
		"a-totally-different-access-secret-32b",
		"a-totally-different-refresh-secret-32",
		time.Hour, 24*time.Hour,
	)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	token, _ := tm1.IssueAccessToken("user-1", "a@example.com", RoleEmployee)
	if _, err := tm2.ValidateAccessToken(token); err == nil {
		t.Fatal("expected token signed by a different secret to be rejected")
	}
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	tm, err := NewTokenManager(
		"access-secret-at-least-32-bytes-long",
		"refresh-secret-at-least-32-bytes-l",
		-time.Minute, // expired beyond the 5s validation leeway
		time.Hour,
	)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	token, err := tm.IssueAccessToken("user-1", "a@example.com", RoleEmployee)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if _, err := tm.ValidateAccessToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestSocketToken(t *testing.T) {
	tm := testTokenManager(t)

	token, err := tm.IssueSocketToken("user-1", "a@example.com", RoleSupervisor)
	if err != nil {
		t.Fatalf("IssueSocketToken() error = %v", err)
	}
	claims, err := tm.ValidateSocketToken(token)
	if err != nil {
		t.Fatalf("ValidateSocketToken() error = %v", err)
	}
	if claims.Role != RoleSupervisor {
		t.Errorf("claims.Role = %q, want %q", claims.Role, RoleSupervisor)
	}

	if _, err := tm.ValidateAccessToken(token); err == nil {
		t.Fatal("expected a socket token to fail access-token validation")
	}
}

func TestGenerateDevSecret(t *testing.T) {
	s1 := GenerateDevSecret()
	s2 := GenerateDevSecret()
	if s1 == s2 {
		t.Fatal("expected two distinct dev secrets")
	}
	if len(s1) != 64 || strings.ContainsAny(s1, "ghijklmnopqrstuvwxyz") {
		t.Fatalf("GenerateDevSecret() = %q, want 64-char hex string", s1)
	}
}
