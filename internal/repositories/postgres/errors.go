package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lensmarket/api/internal/repositories"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateSerializationFailed = "40001"
	sqlStateDeadlockDetected    = "40P01"

	activePaymentIndex = "payments_active_order_idx"
)

// Error implements repositories.RepositoryError for the Postgres backend.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func notFound(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("row %s not found", id), notFound: true}
}

func versionConflict(op, id string, expected int64) error {
	return &Error{op: op, err: fmt.Errorf("row %s changed since version %d", id, expected), conflict: true}
}

// wrapError classifies driver errors. Context errors pass through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr *Error
	if errors.As(err, &repoErr) || errors.Is(err, repositories.ErrActivePaymentExists) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{op: op, err: err, notFound: true}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			if pgErr.ConstraintName == activePaymentIndex {
				return fmt.Errorf("%s: %w", op, repositories.ErrActivePaymentExists)
			}
			return &Error{op: op, err: err, conflict: true}
		case sqlStateSerializationFailed, sqlStateDeadlockDetected:
			return &Error{op: op, err: err, conflict: true}
		}
		return &Error{op: op, err: err}
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return &Error{op: op, err: err, unavailable: true}
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &Error{op: op, err: err, unavailable: true}
	}
	return &Error{op: op, err: err}
}
