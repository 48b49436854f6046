package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrResourceBusy indicates row-lock contention; the caller may retry.
	ErrResourceBusy = errors.New("resource busy")
)

// Postgres error codes surfaced to callers.
const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	pgSerializationFail = "40001"
)

// MapPgError translates lock contention and serialization failures into
// ErrResourceBusy so callers can retry without inspecting driver errors.
func MapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFail:
			return ErrResourceBusy
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
