package httpapi

import (
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/httpserver"
)

// rateLimit gates a handler behind the per-IP login rate limiter (spec.md
// §4.H: "Rate limits are applied only at ingress"). A nil rateLimiter (e.g.
// in tests) disables the check entirely.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		result, err := h.rateLimiter.Check(r.Context(), ip)
		if err != nil {
			httpserver.RespondAppErr(w, h.logger, err)
			return
		}
		if !result.Allowed {
			httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerRequest is the POST /auth/register body (spec.md §6).
type registerRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required"`
	Role       string  `json:"role" validate:"required,oneof=employee supervisor"`
	Department *string `json:"department,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Department *string   `json:"department,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Role, req.Department)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, userResponse{
		ID:         user.ID,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := r.RemoteAddr
	if host, _, splitErr := net.SplitHostPort(ip); splitErr == nil {
		ip = host
	}

	user, pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.rateLimiter != nil {
			_ = h.rateLimiter.Record(r.Context(), ip)
		}
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}
	if h.rateLimiter != nil {
		_ = h.rateLimiter.Reset(r.Context(), ip)
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"user":         userResponse{ID: user.ID, Email: user.Email, Role: user.Role, Department: user.Department},
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	var req changePasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), id.UserID, req.OldPassword, req.NewPassword); err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())

	user, err := h.store.FindUserByID(r.Context(), h.store.Pool(), id.UserID)
	if err != nil {
		httpserver.RespondAppErr(w, h.logger, err)
		return
	}

	resp := map[string]any{
		"user": userResponse{ID: user.ID, Email: user.Email, Role: user.Role, Department: user.Department},
	}

	devices, err := h.store.ListDevices(r.Context(), h.store.Pool(), &user.ID)
	if err == nil {
		resp["devices"] = devices
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"valid":   true,
		"user_id": id.UserID,
		"email":   id.Email,
		"role":    id.Role,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless JWTs (spec.md §4.B); logout is a client-side
	// clear, there is nothing to revoke server-side.
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "logged out"})
}
