package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"apphub/internal/apperr"
	"apphub/internal/repository"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ repository.Store = (*Store)(nil)

func bind(db repository.DBTX) repository.Repositories {
	return repository.Repositories{
		Users: NewUserPostgres(db),
		Files: NewFilePostgres(db),
		Media: NewMediaPostgres(db),
		Apps:  NewAppPostgres(db),
		Audit: NewAuditPostgres(db),
	}
}

// Repos returns repositories that run each statement on its own.
func (s *Store) Repos() repository.Repositories {
	return bind(s.db)
}

// WithinTx runs fn inside one transaction. The transaction is rolled back
// when fn returns an error or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persistence(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Persistence(err, "commit transaction")
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
