package app

import (
	"context"
	"time"

	"exam-portal-service/internal/domain"
)

// IdentityRepository is the account/profile store the auth engine depends on.
type IdentityRepository interface {
	GetByLoginName(ctx context.Context, loginName string) (*domain.Identity, error)
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	GetProfileByIdentity(ctx context.Context, identityID int64) (*domain.StudentProfile, error)
	GetProfileByIDNumber(ctx context.Context, idNumber string) (*domain.StudentProfile, error)
	MarkPhase1Completed(ctx context.Context, identityID int64) error
	// UpdateCredential stores a new hash and clears must_change_password.
	UpdateCredential(ctx context.Context, identityID int64, hash string) error
	// RecordLockState mirrors the lockout store onto the identity row.
	RecordLockState(ctx context.Context, identityID int64, failedAttempts int, lockedUntil *time.Time) error
	PasswordHistory(ctx context.Context, identityID int64, limit int) ([]domain.PasswordHistory, error)
	AppendPasswordHistory(ctx context.Context, entry *domain.PasswordHistory) error
}

// LoginSessionRepository stores the server-side half of issued tokens.
type LoginSessionRepository interface {
	Create(ctx context.Context, session *domain.LoginSession) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.LoginSession, error)
	InvalidateAll(ctx context.Context, identityID int64, endedAt time.Time) error
}

// ExamSessionRepository stores coordinator-issued exam-day secrets.
type ExamSessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ExamSession, error)
	// ListActive returns active sessions that have not expired as of now.
	ListActive(ctx context.Context, now time.Time) ([]domain.ExamSession, error)
	// ActivateExclusive atomically deactivates every other active session
	// for the same exam and inserts the new one.
	ActivateExclusive(ctx context.Context, session *domain.ExamSession) error
	Deactivate(ctx context.Context, id string) error
}

// AttemptRepository stores attempts and their answers.
type AttemptRepository interface {
	// GetOrCreate returns the unique attempt for (identity, exam), creating
	// it with startedAt when absent.
	GetOrCreate(ctx context.Context, identityID, examID int64, startedAt time.Time) (*domain.Attempt, error)
	GetByID(ctx context.Context, id int64) (*domain.Attempt, error)
	// UpsertAnswer inserts or updates the single row per (attempt, question).
	UpsertAnswer(ctx context.Context, answer *domain.Answer) error
	SetFlag(ctx context.Context, attemptID, questionID int64, flagged bool, at time.Time) error
	ListAnswers(ctx context.Context, attemptID int64) ([]domain.Answer, error)
	// ClaimSubmission flips submitted false -> true; reports false when the
	// attempt was already submitted, so double submits resolve to one winner.
	ClaimSubmission(ctx context.Context, attemptID int64, at time.Time) (bool, error)
	StoreGrade(ctx context.Context, attemptID int64, result domain.GradingResult, at time.Time) error
}

// ExamRepository loads exam definitions.
type ExamRepository interface {
	GetExam(ctx context.Context, examID int64) (*domain.Exam, error)
}

// ExamContentRepository returns assembled exam content, typically through
// a TTL cache in front of the relational loader.
type ExamContentRepository interface {
	GetContent(ctx context.Context, examID int64) (domain.ExamContent, error)
}

// AuditRepository is the append-only login-attempt trail.
type AuditRepository interface {
	RecordLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
