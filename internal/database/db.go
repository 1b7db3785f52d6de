package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgErrorClasses maps SQLSTATE codes to the model errors services branch on.
// Row-lock contention on the account row counts as an unavailable store so
// attempt accounting fails closed instead of surfacing a raw driver error.
var pgErrorClasses = map[string]error{
	"23505": models.ErrConflict,         // unique_violation
	"23503": models.ErrBadRequest,       // foreign_key_violation
	"23502": models.ErrBadRequest,       // not_null_violation
	"23514": models.ErrBadRequest,       // check_violation
	"40001": models.ErrStoreUnavailable, // serialization_failure
	"40P01": models.ErrStoreUnavailable, // deadlock_detected
	"55P03": models.ErrStoreUnavailable, // lock_not_available
	"57014": models.ErrStoreUnavailable, // query_canceled
}

// MapPostgresError translates pgx errors into model errors. Anything it does
// not recognise is returned unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		mapped, ok := pgErrorClasses[pgErr.Code]
		if !ok {
			return err
		}
		if errors.Is(mapped, models.ErrStoreUnavailable) {
			return fmt.Errorf("%w: sqlstate %s", mapped, pgErr.Code)
		}
		return mapped
	}

	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return err
}

// WithTransaction runs fn in a transaction and commits when it returns nil.
// fn's error comes back unchanged so callers can abort an update with a
// sentinel of their own.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStoreUnavailable, err)
	}
	// No-op once committed; also covers fn panicking
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return MapPostgresError(err)
	}
	return nil
}
