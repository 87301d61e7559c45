package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"exam-portal-service/internal/domain"
)

// AuditRepository appends to the login-attempt trail. Rows are never
// updated; archival moves old rows into the archive table wholesale.
type AuditRepository struct {
	db *bun.DB
}

func NewAuditRepository(db *bun.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) RecordLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	_, err := r.db.NewInsert().Model(attempt).Exec(ctx)
	return err
}

// ArchiveOlderThan copies attempts older than cutoff into
// login_attempts_archive and deletes them from the live table, returning
// how many rows moved.
func (r *AuditRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var moved int64
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO login_attempts_archive
			SELECT * FROM login_attempts WHERE created_at < ?
		`, cutoff); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*domain.LoginAttempt)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return err
		}
		moved, err = res.RowsAffected()
		return err
	})
	return moved, err
}
