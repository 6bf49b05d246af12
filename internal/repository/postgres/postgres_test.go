package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apphub/internal/apperr"
	"apphub/internal/model"
	"apphub/internal/repository"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var userColumns = []string{"id", "email", "display_name", "role", "created_at", "last_login"}

func TestUserPostgres_Upsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserPostgres(db)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice@example.com", "Alice", now).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(7), "alice@example.com", "Alice", "viewer", now, now))

	p, err := repo.Upsert(context.Background(), "  Alice@Example.COM ", "Alice", now)

	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, model.RoleViewer, p.Role)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserPostgres_UpsertUnknownStoredRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserPostgres(db)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(7), "a@example.com", "", "superuser", now, now))

	_, err := repo.Upsert(context.Background(), "a@example.com", "", now)

	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestUserPostgres_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ?").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(3), "e@example.com", "", "editor", now, now))

		p, err := repo.FindByID(ctx, 3)

		require.NoError(t, err)
		assert.Equal(t, model.RoleEditor, p.Role)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users WHERE id = ?").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		p, err := repo.FindByID(ctx, 99)

		assert.Nil(t, p)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestUserPostgres_SetRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserPostgres(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE users SET role").
		WithArgs("admin", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SetRole(ctx, 3, model.RoleAdmin))

	mock.ExpectExec("UPDATE users SET role").
		WithArgs("editor", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetRole(ctx, 4, model.RoleEditor)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = repo.SetRole(ctx, 4, model.Role(9))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

var fileRowColumns = []string{"id", "release_id", "platform", "arch", "filename", "stored_path", "size_bytes", "sha256", "mime_type", "download_count", "created_at", "deleted_at"}

func TestFilePostgres_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFilePostgres(db)
	now := time.Now().UTC()

	f := &model.FileRecord{
		ReleaseID:  2,
		Platform:   "windows",
		Arch:       "x64",
		Filename:   "report.exe",
		StoredPath: "/srv/apphub/files/abc-report.exe",
		SizeBytes:  37,
		SHA256:     "deadbeef",
		MimeType:   "application/octet-stream",
		CreatedAt:  now,
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").
			WithArgs(f.ReleaseID, f.Platform, f.Arch, f.Filename, f.StoredPath, f.SizeBytes, f.SHA256, f.MimeType, f.CreatedAt).
			WillReturnRows(sqlmock.NewRows(fileRowColumns).
				AddRow(int64(11), f.ReleaseID, f.Platform, f.Arch, f.Filename, f.StoredPath, f.SizeBytes, f.SHA256, f.MimeType, int64(0), now, nil))

		out, err := repo.Create(context.Background(), f)

		require.NoError(t, err)
		assert.Equal(t, int64(11), out.ID)
		assert.Nil(t, out.DeletedAt)
	})

	t.Run("missing release", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err := repo.Create(context.Background(), f)

		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("database down", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO files").
			WillReturnError(errors.New("connection refused"))

		_, err := repo.Create(context.Background(), f)

		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_FindActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFilePostgres(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM files WHERE id = (.+) AND deleted_at IS NULL").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow(int64(11), int64(2), "linux", "arm64", "tool.tgz", "/srv/files/x-tool.tgz", int64(5), "aa", "application/x-tar", int64(4), now, nil))

	f, err := repo.FindActive(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.DownloadCount)

	mock.ExpectQuery("SELECT (.+) FROM files").
		WithArgs(int64(12)).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindActive(context.Background(), 12)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFilePostgres_FindDownloadable(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFilePostgres(db)
	now := time.Now()

	mock.ExpectQuery(`FROM files f\s+JOIN releases r ON r.id = f.release_id\s+WHERE f.id = \$1 AND f.deleted_at IS NULL AND r.deleted_at IS NULL`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow(int64(11), int64(2), "windows", "x86_64", "tool.exe", "/srv/files/x-tool.exe", int64(5), "aa", "application/octet-stream", int64(1), now, nil))

	f, err := repo.FindDownloadable(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.ReleaseID)

	// A live file under a soft deleted release matches no row.
	mock.ExpectQuery(`JOIN releases r`).
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	_, err = repo.FindDownloadable(context.Background(), 12)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_SoftDeleteAndDownloads(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFilePostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE files SET deleted_at").
		WithArgs(now, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SoftDelete(ctx, 11, now))

	mock.ExpectExec("UPDATE files SET deleted_at").
		WithArgs(now, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(repo.SoftDelete(ctx, 11, now)))

	mock.ExpectExec("UPDATE files SET download_count = download_count \\+ 1").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.IncrementDownloads(ctx, 5))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaPostgres(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMediaPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()
	cols := []string{"id", "app_id", "type", "stored_path", "caption", "sort_order", "created_at"}

	m := &model.MediaRecord{AppID: 1, Type: "screenshot", StoredPath: "/srv/media/x-a.png", Caption: "home", SortOrder: 2, CreatedAt: now}
	mock.ExpectQuery("INSERT INTO media").
		WithArgs(m.AppID, m.Type, m.StoredPath, m.Caption, m.SortOrder, m.CreatedAt).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(5), m.AppID, m.Type, m.StoredPath, m.Caption, m.SortOrder, now))

	out, err := repo.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.ID)

	mock.ExpectQuery("SELECT (.+) FROM media WHERE id = ?").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(5), m.AppID, m.Type, m.StoredPath, m.Caption, m.SortOrder, now))
	found, err := repo.FindByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, m.StoredPath, found.StoredPath)

	mock.ExpectExec("DELETE FROM media WHERE id = ?").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(ctx, 5))

	mock.ExpectExec("DELETE FROM media WHERE id = ?").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(repo.Delete(ctx, 5)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppPostgres(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM apps").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at", "deleted_at"}).AddRow(int64(3), "tool", "Tool", now, nil))
	a, err := repo.FindActive(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "tool", a.Slug)

	mock.ExpectExec("UPDATE apps SET deleted_at").
		WithArgs(now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SoftDelete(ctx, 3, now))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPostgres_Insert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditPostgres(db)
	now := time.Now().UTC()
	id := int64(9)

	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs("admin@example.com", "delete", "app", id, `{"slug":"tool"}`, nil, "198.51.100.4", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	got, err := repo.Insert(context.Background(), &model.AuditEntry{
		ActorEmail: "admin@example.com",
		Action:     model.AuditDelete,
		EntityType: "app",
		EntityID:   &id,
		Before:     []byte(`{"slug":"tool"}`),
		SourceIP:   "198.51.100.4",
		CreatedAt:  now,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPostgres_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditPostgres(db)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT (.+) FROM audit_log ORDER BY").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_email", "action", "entity_type", "entity_id", "before_json", "after_json", "ip", "created_at"}).
			AddRow(int64(2), "a@example.com", "update", "user", int64(4), []byte(`{"role":"viewer"}`), []byte(`{"role":"editor"}`), "", now).
			AddRow(int64(1), "a@example.com", "create", "file", nil, nil, []byte(`{"id":1}`), "10.0.0.1", now))

	res, err := repo.List(context.Background(), repository.PageQuery{Limit: 10, Offset: 0})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, model.AuditUpdate, res.Items[0].Action)
	assert.Equal(t, int64(4), *res.Items[0].EntityID)
	assert.Nil(t, res.Items[1].EntityID)
	assert.Nil(t, res.Items[1].Before)
	assert.JSONEq(t, `{"id":1}`, string(res.Items[1].After))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE apps SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_log").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(r repository.Repositories) error {
			if err := r.Apps.SoftDelete(ctx, 3, now); err != nil {
				return err
			}
			_, err := r.Audit.Insert(ctx, &model.AuditEntry{ActorEmail: "a@example.com", Action: model.AuditDelete, EntityType: "app", CreatedAt: now})
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("audit failure rolls back the mutation", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE apps SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO audit_log").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(r repository.Repositories) error {
			if err := r.Apps.SoftDelete(ctx, 3, now); err != nil {
				return err
			}
			_, err := r.Audit.Insert(ctx, &model.AuditEntry{ActorEmail: "a@example.com", Action: model.AuditDelete, EntityType: "app", CreatedAt: now})
			return err
		})

		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		called := false
		err := store.WithinTx(ctx, func(repository.Repositories) error {
			called = true
			return nil
		})

		assert.False(t, called)
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	})

	t.Run("panic rolls back", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = store.WithinTx(ctx, func(repository.Repositories) error { panic("boom") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
