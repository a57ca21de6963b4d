package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// PostgreSQL error codes the engine distinguishes.
const (
	codeUniqueViolation   = "23505"
	codeDuplicateTable    = "42P07"
	codeDuplicateSchema   = "42P06"
	codeUndefinedTable    = "42P01"
	codeInvalidSchemaName = "3F000"
)

// MapError wraps well-known PostgreSQL errors with a sentinel while keeping
// the original error (and its detail) reachable through errors.As.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case codeDuplicateTable, codeDuplicateSchema:
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case codeUndefinedTable, codeInvalidSchemaName:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// ErrorDetail returns the most specific human-readable detail PostgreSQL
// attached to err, or the error text.
func ErrorDetail(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return pgErr.Detail
		}
		return pgErr.Message
	}
	return err.Error()
}
