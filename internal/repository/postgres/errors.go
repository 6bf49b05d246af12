package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"apphub/internal/apperr"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

func isForeignKeyViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == codeForeignKeyViolation
}

func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == codeUniqueViolation
}

// classify maps driver errors onto the error taxonomy. what names the entity
// for not-found messages and the operation for everything else.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case apperr.IsCoded(err):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound(what + " not found")
	case isForeignKeyViolation(err):
		return apperr.Validation(apperr.CodeInvalidInput, "referenced "+what+" does not exist")
	case isUniqueViolation(err):
		return apperr.Validation(apperr.CodeInvalidInput, what+" already exists")
	default:
		return apperr.Persistence(err, what)
	}
}

// expectOne turns a zero rows-affected result into NotFound.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Persistence(err, what)
	}
	if n == 0 {
		return apperr.NotFound(what + " not found")
	}
	return nil
}
