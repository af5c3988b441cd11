// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrForeignKey is returned when a write references a missing parent row.
	ErrForeignKey = errors.New("foreign key constraint failed")
)

// UniqueError is returned when a write violates a unique constraint.
type UniqueError struct {
	Table  string
	Column string
}

func (e *UniqueError) Error() string {
	return fmt.Sprintf("unique constraint failed: %s.%s", e.Table, e.Column)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
}

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
	q  queryer
	tx *sqlx.Tx
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

// DB returns the underlying sqlx DB for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// InTx runs fn against a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Nested
// calls reuse the outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) (err error) {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", wrapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Repository{db: r.db, q: tx, tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", wrapError(err))
	}
	return nil
}

func (r *Repository) get(ctx context.Context, dest any, query string, args ...any) error {
	return wrapError(sqlx.GetContext(ctx, r.q, dest, query, args...))
}

func (r *Repository) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return wrapError(sqlx.SelectContext(ctx, r.q, dest, query, args...))
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	return res, nil
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
	if errors.As(err, &sqliteErr) {
		msg := sqliteErr.Error()
		switch code := sqliteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return parseUniqueError(msg)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrForeignKey
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			// Extended result codes disabled; fall back to the message.
			if strings.Contains(msg, "UNIQUE constraint failed") {
				return parseUniqueError(msg)
			}
			if strings.Contains(msg, "FOREIGN KEY constraint failed") {
				return ErrForeignKey
			}
		}
	}
	return err
}

// parseUniqueError extracts table and column from messages like
// "UNIQUE constraint failed: accounts.email".
func parseUniqueError(msg string) *UniqueError {
	const marker = "constraint failed: "
	idx := strings.LastIndex(msg, marker)
	if idx < 0 {
		return &UniqueError{}
	}

	target := msg[idx+len(marker):]
	if end := strings.IndexAny(target, ", ("); end >= 0 {
		target = target[:end]
	}

	table, column, found := strings.Cut(target, ".")
	if !found {
		return &UniqueError{Column: table}
	}
	return &UniqueError{Table: table, Column: column}
}

// IsUnique reports whether err is a unique violation on the given column.
func IsUnique(err error, column string) bool {
	var uniqueErr *UniqueError
	return errors.As(err, &uniqueErr) && uniqueErr.Column == column
}
