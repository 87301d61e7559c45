package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"exam-portal-service/internal/domain"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// NewRouter wires the portal's endpoints. Exam routes require a live login
// session token; coordinator routes additionally require the role.
func NewRouter(auth *AuthHandler, exams *ExamHandler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/phase1", auth.Phase1Login)
		r.Post("/phase2", auth.Phase2Login)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)
			r.Post("/change-password", auth.ChangePassword)
			r.Post("/logout", auth.Logout)
		})
	})

	r.Route("/exams", func(r chi.Router) {
		r.Use(auth.RequireSession)
		r.Get("/{examID}/content", exams.Content)
		r.Post("/{examID}/attempts", exams.StartAttempt)
		r.Get("/attempts/{attemptID}/remaining", exams.RemainingTime)
		r.Post("/attempts/{attemptID}/answers", exams.SaveAnswer)
		r.Post("/attempts/{attemptID}/flags", exams.ToggleFlag)
		r.Post("/attempts/{attemptID}/submit", exams.Submit)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireCoordinator)
			r.Post("/{examID}/sessions", exams.IssueExamSession)
			r.Post("/attempts/{attemptID}/regrade", exams.Regrade)
		})
	})

	r.Get("/ws/attempts/{attemptID}", ws.ServeWS)

	return r
}

func identityFrom(ctx context.Context) *domain.Identity {
	identity, _ := ctx.Value(ctxIdentity).(*domain.Identity)
	return identity
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorResponse struct {
	OK        bool   `json:"ok"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		OK:        false,
		ErrorKind: domain.KindOf(err),
		Message:   domain.UserMessage(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrIncorrectPassword),
		errors.Is(err, domain.ErrIncorrectExamPassword),
		errors.Is(err, domain.ErrSessionInvalid),
		errors.Is(err, domain.ErrPhase1NotCompleted):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, domain.ErrPhase1AlreadyCompleted),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrSessionTimeout):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimestampTampered):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStudentRecordNotFound),
		errors.Is(err, domain.ErrExamSessionNotFound),
		errors.Is(err, domain.ErrExamNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrChoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWeakPassword),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordReuse),
		errors.Is(err, domain.ErrConfirmationMismatch),
		errors.Is(err, domain.ErrExamNotPublished):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// bearerToken extracts the opaque session token from the Authorization
// header or the X-Session-Token fallback used by the websocket client.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return r.Header.Get("X-Session-Token")
}
