package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"exam-portal-service/internal/domain"
)

// IdentityRepository is the bun-backed implementation of
// app.IdentityRepository.
type IdentityRepository struct {
	db *bun.DB
}

func NewIdentityRepository(db *bun.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetByLoginName(ctx context.Context, loginName string) (*domain.Identity, error) {
	identity := new(domain.Identity)
	err := r.db.NewSelect().Model(identity).Where("login_name = ?", loginName).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	identity := new(domain.Identity)
	err := r.db.NewSelect().Model(identity).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (r *IdentityRepository) GetProfileByIdentity(ctx context.Context, identityID int64) (*domain.StudentProfile, error) {
	profile := new(domain.StudentProfile)
	err := r.db.NewSelect().Model(profile).Where("identity_id = ?", identityID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *IdentityRepository) GetProfileByIDNumber(ctx context.Context, idNumber string) (*domain.StudentProfile, error) {
	profile := new(domain.StudentProfile)
	err := r.db.NewSelect().Model(profile).Where("id_number = ?", idNumber).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *IdentityRepository) MarkPhase1Completed(ctx context.Context, identityID int64) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Identity)(nil)).
		Set("phase1_completed = TRUE").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", identityID).
		Exec(ctx)
	return err
}

func (r *IdentityRepository) UpdateCredential(ctx context.Context, identityID int64, hash string) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Identity)(nil)).
		Set("password_hash = ?", hash).
		Set("must_change_password = FALSE").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", identityID).
		Exec(ctx)
	return err
}

func (r *IdentityRepository) RecordLockState(ctx context.Context, identityID int64, failedAttempts int, lockedUntil *time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Identity)(nil)).
		Set("failed_attempts = ?", failedAttempts).
		Set("locked = ?", lockedUntil != nil).
		Set("lockout_ends_at = ?", lockedUntil).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", identityID).
		Exec(ctx)
	return err
}

func (r *IdentityRepository) PasswordHistory(ctx context.Context, identityID int64, limit int) ([]domain.PasswordHistory, error) {
	var entries []domain.PasswordHistory
	err := r.db.NewSelect().
		Model(&entries).
		Where("identity_id = ?", identityID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *IdentityRepository) AppendPasswordHistory(ctx context.Context, entry *domain.PasswordHistory) error {
	_, err := r.db.NewInsert().Model(entry).Exec(ctx)
	return err
}
