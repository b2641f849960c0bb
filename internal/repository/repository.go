// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository is the credential store adapter. It runs parameterized
// statements against the users, password_reset_codes and audit_logs tables
// and holds no business logic.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

const pgUniqueViolation = "23505"

// DefaultQueryTimeout bounds every statement when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// Repository wraps sqlx for database operations.
type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithQueryTimeout sets the per-statement timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a new Repository instance.
func New(db *sqlx.DB, opts ...Option) *Repository {
	r := &Repository{db: db, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB returns the underlying sqlx handle.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// Ping checks that the database answers within the query timeout.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repository) get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return wrapError(r.db.GetContext(ctx, dest, r.db.Rebind(query), args...))
}

func (r *Repository) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return wrapError(r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...))
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, wrapError(err)
	}
	return res.RowsAffected()
}

// inTx runs fn inside a transaction bounded by the query timeout.
// The transaction is rolled back when fn returns an error.
func (r *Repository) inTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return wrapError(err)
	}
	return tx.Commit()
}

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}
