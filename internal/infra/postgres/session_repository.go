package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"exam-portal-service/internal/domain"
)

// LoginSessionRepository is the bun-backed implementation of
// app.LoginSessionRepository.
type LoginSessionRepository struct {
	db *bun.DB
}

func NewLoginSessionRepository(db *bun.DB) *LoginSessionRepository {
	return &LoginSessionRepository{db: db}
}

func (r *LoginSessionRepository) Create(ctx context.Context, session *domain.LoginSession) error {
	_, err := r.db.NewInsert().Model(session).Exec(ctx)
	return err
}

func (r *LoginSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.LoginSession, error) {
	session := new(domain.LoginSession)
	err := r.db.NewSelect().Model(session).Where("token_hash = ?", tokenHash).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *LoginSessionRepository) InvalidateAll(ctx context.Context, identityID int64, endedAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*domain.LoginSession)(nil)).
		Set("active = FALSE").
		Set("ended_at = ?", endedAt).
		Where("identity_id = ? AND active", identityID).
		Exec(ctx)
	return err
}

// ExamSessionRepository is the bun-backed implementation of
// app.ExamSessionRepository.
type ExamSessionRepository struct {
	db *bun.DB
}

func NewExamSessionRepository(db *bun.DB) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

func (r *ExamSessionRepository) GetByID(ctx context.Context, id string) (*domain.ExamSession, error) {
	session := new(domain.ExamSession)
	err := r.db.NewSelect().Model(session).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *ExamSessionRepository) ListActive(ctx context.Context, now time.Time) ([]domain.ExamSession, error) {
	var sessions []domain.ExamSession
	err := r.db.NewSelect().
		Model(&sessions).
		Where("active AND expires_at > ?", now).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ActivateExclusive deactivates every active session for the exam and
// inserts the new one inside one transaction, so a race between two
// coordinators cannot leave two sessions active.
func (r *ExamSessionRepository) ActivateExclusive(ctx context.Context, session *domain.ExamSession) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*domain.ExamSession)(nil)).
			Set("active = FALSE").
			Where("exam_id = ? AND active", session.ExamID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(session).Exec(ctx)
		return err
	})
}

func (r *ExamSessionRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*domain.ExamSession)(nil)).
		Set("active = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}
