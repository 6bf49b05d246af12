// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres) inside this directory.
package repository

import (
	"context"
	"database/sql"
	"time"

	"apphub/internal/model"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository stores principals keyed by normalized email.
type UserRepository interface {
	// Upsert creates the principal on first sight with the viewer role, or
	// refreshes last_login (and the display name when one is given).
	Upsert(ctx context.Context, email, displayName string, seenAt time.Time) (*model.Principal, error)

	FindByID(ctx context.Context, id int64) (*model.Principal, error)

	// SetRole changes a principal's role. Missing users are NotFound.
	SetRole(ctx context.Context, id int64, role model.Role) error
}

// FileRepository stores release binaries.
type FileRepository interface {
	Create(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error)

	// FindActive returns a file that has not been soft deleted.
	FindActive(ctx context.Context, id int64) (*model.FileRecord, error)

	// FindDownloadable is FindActive restricted to files whose release has
	// not been soft deleted either.
	FindDownloadable(ctx context.Context, id int64) (*model.FileRecord, error)

	SoftDelete(ctx context.Context, id int64, at time.Time) error
	IncrementDownloads(ctx context.Context, id int64) error
}

// MediaRepository stores app screenshots and icons.
type MediaRepository interface {
	Create(ctx context.Context, m *model.MediaRecord) (*model.MediaRecord, error)
	FindByID(ctx context.Context, id int64) (*model.MediaRecord, error)
	Delete(ctx context.Context, id int64) error
}

// AppRepository covers the app listing operations the core performs.
type AppRepository interface {
	FindActive(ctx context.Context, id int64) (*model.App, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}

// AuditRepository is append-only.
type AuditRepository interface {
	Insert(ctx context.Context, e *model.AuditEntry) (int64, error)
	List(ctx context.Context, pq PageQuery) (*PageResult[model.AuditEntry], error)
}

// Repositories bundles repositories bound to one connection or transaction.
type Repositories struct {
	Users UserRepository
	Files FileRepository
	Media MediaRepository
	Apps  AppRepository
	Audit AuditRepository
}

// Store hands out repositories. WithinTx runs fn in a single transaction that
// commits only when fn returns nil.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
	Ping(ctx context.Context) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
