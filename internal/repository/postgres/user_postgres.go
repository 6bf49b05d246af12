package postgres

import (
	"context"
	"time"

	"apphub/internal/apperr"
	"apphub/internal/model"
	"apphub/internal/repository"
)

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db repository.DBTX
}

func NewUserPostgres(db repository.DBTX) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

type principalScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row principalScanner) (*model.Principal, error) {
	var (
		p    model.Principal
		role string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &role, &p.CreatedAt, &p.LastLogin); err != nil {
		return nil, err
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, apperr.Internal(err, "stored role")
	}
	p.Role = r
	return &p, nil
}

// Upsert creates or refreshes the principal for email.
func (r *UserPostgres) Upsert(ctx context.Context, email, displayName string, seenAt time.Time) (*model.Principal, error) {
	const q = `
		INSERT INTO users (email, display_name, role, created_at, last_login)
		VALUES ($1, NULLIF($2, ''), 'viewer', $3, $3)
		ON CONFLICT (email) DO UPDATE
		SET last_login   = EXCLUDED.last_login,
		    display_name = COALESCE(EXCLUDED.display_name, users.display_name)
		RETURNING id, email, COALESCE(display_name, ''), role, created_at, last_login
	`
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, q, model.NormalizeEmail(email), displayName, seenAt))
	if err != nil {
		return nil, classify(err, "user")
	}
	return p, nil
}

// FindByID fetches a single principal.
func (r *UserPostgres) FindByID(ctx context.Context, id int64) (*model.Principal, error) {
	const q = `
		SELECT id, email, COALESCE(display_name, ''), role, created_at, last_login
		FROM users
		WHERE id = $1
	`
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, classify(err, "user")
	}
	return p, nil
}

// SetRole updates the role of an existing principal.
func (r *UserPostgres) SetRole(ctx context.Context, id int64, role model.Role) error {
	if !role.Valid() {
		return apperr.Validationf(apperr.CodeInvalidInput, "invalid role %q", role.String())
	}
	const q = `UPDATE users SET role = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, q, role.String(), id)
	if err != nil {
		return classify(err, "user")
	}
	return expectOne(res, "user")
}
