package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes this layer cares about. Callers translate them
// into graph sentinels in context: a foreign key violation on insert
// means a referenced row is missing, on delete it means the row is
// still referenced.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
