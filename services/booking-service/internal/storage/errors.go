package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotOwner          = errors.New("not authorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIdempotencyReuse  = errors.New("idempotency key reused for a different request")
)

const idempotencyPKey = "booking_idempotency_keys_pkey"

// IsConflict reports a unique (23505) or exclusion (23P01) violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == idempotencyPKey
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}
