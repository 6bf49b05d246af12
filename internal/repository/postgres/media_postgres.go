package postgres

import (
	"context"

	"apphub/internal/model"
	"apphub/internal/repository"
)

// MediaPostgres is a PostgreSQL implementation of repository.MediaRepository.
type MediaPostgres struct {
	db repository.DBTX
}

func NewMediaPostgres(db repository.DBTX) *MediaPostgres {
	return &MediaPostgres{db: db}
}

var _ repository.MediaRepository = (*MediaPostgres)(nil)

func scanMedia(row interface{ Scan(...any) error }) (*model.MediaRecord, error) {
	var m model.MediaRecord
	if err := row.Scan(
		&m.ID,
		&m.AppID,
		&m.Type,
		&m.StoredPath,
		&m.Caption,
		&m.SortOrder,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a media row and returns the stored record.
func (r *MediaPostgres) Create(ctx context.Context, m *model.MediaRecord) (*model.MediaRecord, error) {
	const q = `
		INSERT INTO media (app_id, type, stored_path, caption, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, app_id, type, stored_path, caption, sort_order, created_at
	`
	out, err := scanMedia(r.db.QueryRowContext(ctx, q,
		m.AppID,
		m.Type,
		m.StoredPath,
		m.Caption,
		m.SortOrder,
		m.CreatedAt,
	))
	if err != nil {
		return nil, classify(err, "app")
	}
	return out, nil
}

// FindByID fetches a single media row.
func (r *MediaPostgres) FindByID(ctx context.Context, id int64) (*model.MediaRecord, error) {
	const q = `
		SELECT id, app_id, type, stored_path, caption, sort_order, created_at
		FROM media
		WHERE id = $1
	`
	m, err := scanMedia(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, classify(err, "media")
	}
	return m, nil
}

// Delete removes a media row.
func (r *MediaPostgres) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM media WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return classify(err, "media")
	}
	return expectOne(res, "media")
}
