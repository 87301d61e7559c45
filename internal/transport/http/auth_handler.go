package http

import (
	"context"
	"encoding/json"
	"net/http"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
)

// AuthHandler exposes the two-phase login, password change, and logout
// endpoints, and provides the session middleware for protected routes.
type AuthHandler struct {
	auth *app.AuthService
}

func NewAuthHandler(auth *app.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type phase1Request struct {
	LoginName string `json:"loginName"`
	Password  string `json:"password"`
}

type phase2Request struct {
	IDNumber string `json:"idNumber"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK                 bool   `json:"ok"`
	SessionToken       string `json:"sessionToken,omitempty"`
	ClaimsToken        string `json:"claimsToken,omitempty"`
	ExamSessionID      string `json:"examSessionId,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword,omitempty"`
	Message            string `json:"message,omitempty"`
	RetryAfterSeconds  int64  `json:"retryAfterSeconds,omitempty"`
}

// Phase1Login handles POST /auth/phase1.
func (h *AuthHandler) Phase1Login(w http.ResponseWriter, r *http.Request) {
	var req phase1Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	result, err := h.auth.ValidatePhase1(r.Context(), req.LoginName, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if err == domain.ErrAccountLocked {
			writeJSON(w, statusFor(err), loginResponse{
				OK:                false,
				Message:           domain.UserMessage(err),
				RetryAfterSeconds: int64(result.RetryAfter.Seconds()),
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		OK:                 true,
		SessionToken:       result.Token,
		ClaimsToken:        result.ClaimsToken,
		MustChangePassword: result.MustChangePassword,
		Message:            result.Message,
	})
}

// Phase2Login handles POST /auth/phase2.
func (h *AuthHandler) Phase2Login(w http.ResponseWriter, r *http.Request) {
	var req phase2Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	result, err := h.auth.ValidatePhase2(r.Context(), req.IDNumber, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		OK:                 true,
		SessionToken:       result.Token,
		ClaimsToken:        result.ClaimsToken,
		ExamSessionID:      result.ExamSessionID,
		MustChangePassword: result.MustChangePassword,
	})
}

type changePasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePassword handles POST /auth/change-password for the logged-in
// identity.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), identity.ID, req.NewPassword, req.ConfirmPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Logout handles POST /auth/logout; it tears down every active session for
// the identity.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if err := h.auth.InvalidateAllSessions(r.Context(), identity.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// RequireSession resolves the opaque token and stores the identity on the
// request context.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _, err := h.auth.ResolveIdentity(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxIdentity, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCoordinator gates coordinator-only routes.
func (h *AuthHandler) RequireCoordinator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())
		if identity == nil || identity.Role != domain.RoleCoordinator {
			writeError(w, domain.ErrSessionInvalid)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
