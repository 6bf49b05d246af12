package postgres

import (
	"context"
	"database/sql"
	"time"

	"apphub/internal/model"
	"apphub/internal/repository"
)

// AppPostgres is a PostgreSQL implementation of repository.AppRepository.
type AppPostgres struct {
	db repository.DBTX
}

func NewAppPostgres(db repository.DBTX) *AppPostgres {
	return &AppPostgres{db: db}
}

var _ repository.AppRepository = (*AppPostgres)(nil)

// FindActive fetches an app that has not been soft deleted.
func (r *AppPostgres) FindActive(ctx context.Context, id int64) (*model.App, error) {
	const q = `
		SELECT id, slug, name, created_at, deleted_at
		FROM apps
		WHERE id = $1 AND deleted_at IS NULL
	`
	var (
		a       model.App
		deleted sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.Slug, &a.Name, &a.CreatedAt, &deleted); err != nil {
		return nil, classify(err, "app")
	}
	if deleted.Valid {
		a.DeletedAt = &deleted.Time
	}
	return &a, nil
}

// SoftDelete marks an app deleted. Already deleted apps are NotFound.
func (r *AppPostgres) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE apps SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, at, id)
	if err != nil {
		return classify(err, "app")
	}
	return expectOne(res, "app")
}
