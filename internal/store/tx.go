package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const maxTxAttempts = 3

// withTxRetry runs fn inside a transaction, rolling back on any error. The
// whole transaction is retried on transient serialization failures so a
// multi-statement write either fully commits or leaves no trace.
func (s *PostgresStore) withTxRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isTransient(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isTransient(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

// isTransient reports whether an error is a serialization failure or deadlock
// that is safe to retry as a whole transaction.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// isUniqueViolation reports a duplicate-key insert, the expected loser of a
// concurrent first-sight user creation race.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
