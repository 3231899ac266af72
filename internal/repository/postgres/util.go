package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const codeUniqueViolation = "23505"

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
