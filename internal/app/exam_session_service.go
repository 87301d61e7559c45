package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"exam-portal-service/internal/domain"
)

// ExamSessionService manages exam-day session passwords: issuing a new one
// deactivates every prior active session for the same exam, so at most one
// is ever live per exam.
type ExamSessionService struct {
	sessions ExamSessionRepository
	exams    ExamRepository
	validity time.Duration
	clock    func() time.Time
}

func NewExamSessionService(sessions ExamSessionRepository, exams ExamRepository, validity time.Duration) *ExamSessionService {
	if validity == 0 {
		validity = 24 * time.Hour
	}
	return &ExamSessionService{
		sessions: sessions,
		exams:    exams,
		validity: validity,
		clock:    time.Now,
	}
}

// WithClock is test-only for deterministic time.
func (s *ExamSessionService) WithClock(now func() time.Time) *ExamSessionService {
	s.clock = now
	return s
}

// Issue creates and activates a session for a published exam. The
// deactivate-then-activate step is a single transaction in the repository
// so two coordinators racing each other cannot leave two sessions active.
func (s *ExamSessionService) Issue(ctx context.Context, examID int64, plaintextPassword string) (*domain.ExamSession, error) {
	if plaintextPassword == "" {
		return nil, domain.ErrInvalidFormat
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		log.Printf("[examsession] exam lookup failed for %d: %v", examID, err)
		return nil, domain.ErrSystem
	}
	if exam == nil {
		return nil, domain.ErrExamNotFound
	}
	if !exam.Published {
		return nil, domain.ErrExamNotPublished
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[examsession] hash failed for exam %d: %v", examID, err)
		return nil, domain.ErrSystem
	}
	now := s.clock()
	session := &domain.ExamSession{
		ID:           uuid.NewString(),
		ExamID:       examID,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.validity),
	}
	if err := s.sessions.ActivateExclusive(ctx, session); err != nil {
		log.Printf("[examsession] activation failed for exam %d: %v", examID, err)
		return nil, domain.ErrSystem
	}
	return session, nil
}

// Deactivate retires a session; calling it again is a no-op.
func (s *ExamSessionService) Deactivate(ctx context.Context, sessionID string) error {
	if err := s.sessions.Deactivate(ctx, sessionID); err != nil {
		log.Printf("[examsession] deactivate failed for %s: %v", sessionID, err)
		return domain.ErrSystem
	}
	return nil
}
