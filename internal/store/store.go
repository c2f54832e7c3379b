// Package store is the Store Gateway (spec component A): the sole owner of
// entity lifetimes, offering typed create/find/list/update/delete operations
// plus a transactional helper. It never interprets values — only persists
// and retrieves them — and it is the only package that imports pgx directly
// for entity access.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentrywear/sentry/internal/apperr"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting every query
// function run against either a pooled connection or an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Store Gateway. It holds the pool and exposes WithTx for
// callers (the ingestion pipeline, the attendance state machine) that need
// several writes to commit atomically.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store Gateway over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for read-only call sites (e.g. health
// checks) that do not need the typed accessors.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// WithTx runs fn inside a single serializable-enough transaction (Postgres
// default READ COMMITTED plus explicit row locks where the caller takes
// them, per spec.md §4.E) and commits on success or rolls back on any error,
// including a context cancellation from a disconnecting client.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "beginning transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "committing transaction", err)
	}
	return nil
}

// errNotFound is used at call sites where an affected-rows check (rather
// than a Scan) is how "no such row" is discovered, so translateErr can
// still map it to apperr.NotFound uniformly.
var errNotFound = pgx.ErrNoRows

// translateErr maps a raw pgx/pg error into the taxonomy. Call sites that
// already know the semantic Kind (e.g. "not found" from pgx.ErrNoRows)
// should handle that case themselves before falling back to this.
func translateErr(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperr.Wrap(apperr.Conflict, message, err)
		case "23503": // foreign_key_violation
			return apperr.Wrap(apperr.Validation, message, err)
		case "57014": // query_canceled
			return apperr.Wrap(apperr.StorageUnavailable, message, err)
		}
	}
	return apperr.Wrap(apperr.Internal, message, err)
}
