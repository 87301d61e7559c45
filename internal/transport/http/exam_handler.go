package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
)

// ExamHandler exposes the attempt lifecycle and exam-session endpoints.
type ExamHandler struct {
	attempts     *app.AttemptService
	examSessions *app.ExamSessionService
}

func NewExamHandler(attempts *app.AttemptService, examSessions *app.ExamSessionService) *ExamHandler {
	return &ExamHandler{attempts: attempts, examSessions: examSessions}
}

// StartAttempt handles POST /exams/{examID}/attempts.
func (h *ExamHandler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "examID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	identity := identityFrom(r.Context())
	attempt, err := h.attempts.Start(r.Context(), identity.ID, examID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "attempt": attempt})
}

// Content handles GET /exams/{examID}/content.
func (h *ExamHandler) Content(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "examID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	content, err := h.attempts.Content(r.Context(), examID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// RemainingTime handles GET /exams/attempts/{attemptID}/remaining.
func (h *ExamHandler) RemainingTime(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	remaining, err := h.attempts.Remaining(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remaining)
}

type saveAnswerRequest struct {
	QuestionID int64  `json:"questionId"`
	ChoiceID   *int64 `json:"choiceId"`
	// Timestamp, when present, is the client's copy of the last secure
	// timestamp and is revalidated before the answer is accepted.
	Timestamp *domain.SecureTimestamp `json:"timestamp,omitempty"`
}

// SaveAnswer handles POST /exams/attempts/{attemptID}/answers.
func (h *ExamHandler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == 0 {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	if req.Timestamp != nil {
		if err := h.attempts.VerifyTimestamp(r.Context(), attemptID, *req.Timestamp); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.attempts.SaveAnswer(r.Context(), attemptID, req.QuestionID, req.ChoiceID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type toggleFlagRequest struct {
	QuestionID int64 `json:"questionId"`
	Flagged    bool  `json:"flagged"`
}

// ToggleFlag handles POST /exams/attempts/{attemptID}/flags.
func (h *ExamHandler) ToggleFlag(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	var req toggleFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == 0 {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	if err := h.attempts.ToggleFlag(r.Context(), attemptID, req.QuestionID, req.Flagged); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Submit handles POST /exams/attempts/{attemptID}/submit.
func (h *ExamHandler) Submit(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	result, err := h.attempts.Submit(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

// Regrade handles POST /exams/attempts/{attemptID}/regrade; coordinator
// only.
func (h *ExamHandler) Regrade(w http.ResponseWriter, r *http.Request) {
	attemptID, err := pathID(r, "attemptID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	identity := identityFrom(r.Context())
	result, err := h.attempts.Regrade(r.Context(), attemptID, identity.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

type issueSessionRequest struct {
	Password string `json:"password"`
}

// IssueExamSession handles POST /exams/{examID}/sessions; coordinator only.
func (h *ExamHandler) IssueExamSession(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "examID")
	if err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	var req issueSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	session, err := h.examSessions.Issue(r.Context(), examID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessionId": session.ID, "expiresAt": session.ExpiresAt})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
