package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"exam-portal-service/internal/domain"
)

// AttemptRepository is the bun-backed implementation of
// app.AttemptRepository. Uniqueness of (identity, exam) attempts and
// (attempt, question) answers is enforced by database constraints, so
// concurrent double-writes collapse onto single rows.
type AttemptRepository struct {
	db *bun.DB
}

func NewAttemptRepository(db *bun.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) GetOrCreate(ctx context.Context, identityID, examID int64, startedAt time.Time) (*domain.Attempt, error) {
	attempt := &domain.Attempt{
		IdentityID: identityID,
		ExamID:     examID,
		StartedAt:  startedAt,
	}
	// The no-op update makes RETURNING yield the existing row on conflict.
	_, err := r.db.NewInsert().
		Model(attempt).
		On("CONFLICT (identity_id, exam_id) DO UPDATE").
		Set("identity_id = EXCLUDED.identity_id").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *AttemptRepository) GetByID(ctx context.Context, id int64) (*domain.Attempt, error) {
	attempt := new(domain.Attempt)
	err := r.db.NewSelect().Model(attempt).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *AttemptRepository) UpsertAnswer(ctx context.Context, answer *domain.Answer) error {
	_, err := r.db.NewInsert().
		Model(answer).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("choice_id = EXCLUDED.choice_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *AttemptRepository) SetFlag(ctx context.Context, attemptID, questionID int64, flagged bool, at time.Time) error {
	answer := &domain.Answer{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Flagged:    flagged,
		UpdatedAt:  at,
	}
	_, err := r.db.NewInsert().
		Model(answer).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("flagged = EXCLUDED.flagged").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID int64) ([]domain.Answer, error) {
	var answers []domain.Answer
	err := r.db.NewSelect().
		Model(&answers).
		Where("attempt_id = ?", attemptID).
		Order("question_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return answers, nil
}

// ClaimSubmission is the single atomic submitted=false -> true transition;
// the row count tells the caller whether it won.
func (r *AttemptRepository) ClaimSubmission(ctx context.Context, attemptID int64, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Attempt)(nil)).
		Set("submitted = TRUE").
		Set("submitted_at = ?", at).
		Where("id = ? AND NOT submitted", attemptID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *AttemptRepository) StoreGrade(ctx context.Context, attemptID int64, result domain.GradingResult, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Attempt)(nil)).
		Set("score = ?", result.Correct).
		Set("percentage = ?", result.Percentage).
		Set("grade = ?", result.Grade).
		Set("graded_at = ?", at).
		Where("id = ?", attemptID).
		Exec(ctx)
	return err
}
