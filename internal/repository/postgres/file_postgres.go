package postgres

import (
	"context"
	"database/sql"
	"time"

	"apphub/internal/model"
	"apphub/internal/repository"
)

// FilePostgres is a PostgreSQL implementation of repository.FileRepository.
type FilePostgres struct {
	db repository.DBTX
}

func NewFilePostgres(db repository.DBTX) *FilePostgres {
	return &FilePostgres{db: db}
}

var _ repository.FileRepository = (*FilePostgres)(nil)

const fileColumns = `id, release_id, platform, arch, filename, stored_path, size_bytes, sha256, mime_type, download_count, created_at, deleted_at`

func scanFile(row interface{ Scan(...any) error }) (*model.FileRecord, error) {
	var (
		f       model.FileRecord
		deleted sql.NullTime
	)
	if err := row.Scan(
		&f.ID,
		&f.ReleaseID,
		&f.Platform,
		&f.Arch,
		&f.Filename,
		&f.StoredPath,
		&f.SizeBytes,
		&f.SHA256,
		&f.MimeType,
		&f.DownloadCount,
		&f.CreatedAt,
		&deleted,
	); err != nil {
		return nil, err
	}
	if deleted.Valid {
		f.DeletedAt = &deleted.Time
	}
	return &f, nil
}

// Create inserts a file row and returns the stored record.
func (r *FilePostgres) Create(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error) {
	const q = `
		INSERT INTO files (release_id, platform, arch, filename, stored_path, size_bytes, sha256, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + fileColumns
	out, err := scanFile(r.db.QueryRowContext(ctx, q,
		f.ReleaseID,
		f.Platform,
		f.Arch,
		f.Filename,
		f.StoredPath,
		f.SizeBytes,
		f.SHA256,
		f.MimeType,
		f.CreatedAt,
	))
	if err != nil {
		return nil, classify(err, "release")
	}
	return out, nil
}

// FindActive fetches a file that has not been soft deleted.
func (r *FilePostgres) FindActive(ctx context.Context, id int64) (*model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND deleted_at IS NULL`
	f, err := scanFile(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, classify(err, "file")
	}
	return f, nil
}

// FindDownloadable fetches a live file whose release is live too. A file of
// a soft deleted release is NotFound.
func (r *FilePostgres) FindDownloadable(ctx context.Context, id int64) (*model.FileRecord, error) {
	const q = `
		SELECT f.id, f.release_id, f.platform, f.arch, f.filename, f.stored_path, f.size_bytes,
		       f.sha256, f.mime_type, f.download_count, f.created_at, f.deleted_at
		FROM files f
		JOIN releases r ON r.id = f.release_id
		WHERE f.id = $1 AND f.deleted_at IS NULL AND r.deleted_at IS NULL`
	f, err := scanFile(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, classify(err, "file")
	}
	return f, nil
}

// SoftDelete marks a file deleted. Already deleted files are NotFound.
func (r *FilePostgres) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE files SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, at, id)
	if err != nil {
		return classify(err, "file")
	}
	return expectOne(res, "file")
}

func (r *FilePostgres) IncrementDownloads(ctx context.Context, id int64) error {
	const q = `UPDATE files SET download_count = download_count + 1 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return classify(err, "file")
	}
	return expectOne(res, "file")
}
