package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/apperr"
)

// Middleware authenticates an HTTP request via its Authorization: Bearer
// access token and attaches the resulting Identity to the request context.
// Token validation shares the TokenManager's signature and expiry checks with
// the Socket Facade's handshake (spec.md §4.B: "used by both HTTP and socket
// facades"); the handshake accepts socket-kind tokens, not access tokens.
func Middleware(tokens *TokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeErr(w, apperr.New(apperr.Unauthenticated, "missing bearer token"))
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				logger.Debug("access token rejected", "error", err)
				writeErr(w, apperr.Wrap(apperr.Unauthenticated, "invalid or expired token", err))
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				writeErr(w, apperr.New(apperr.Unauthenticated, "malformed token subject"))
				return
			}

			id := &Identity{UserID: userID, Email: claims.Email, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}

// writeErr renders an *apperr.Error as a JSON HTTP response using the
// kind's mapped status code. It is the auth package's own minimal
// responder so this package has no dependency on the HTTP facade.
func writeErr(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Wrap(apperr.Internal, "unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Kind.HTTPStatus())
	_, _ = w.Write([]byte(`{"error":"` + string(ae.Kind) + `","message":"` + jsonEscape(ae.Message) + `"}`))
}

func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
