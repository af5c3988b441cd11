// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
)

// Account columns that may be looked up or updated individually.
const (
	ColumnUsername     = "username"
	ColumnEmail        = "email"
	ColumnPasswordHash = "password_hash"
)

func checkAccountColumn(column string) error {
	switch column {
	case ColumnUsername, ColumnEmail, ColumnPasswordHash:
		return nil
	}
	return fmt.Errorf("unsupported account column %q", column)
}

// CreateAccount inserts a new account and sets its ID.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	res, err := r.exec(ctx,
		`INSERT INTO accounts (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		account.Username, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = id
	return nil
}

// GetAccountByID retrieves an account by ID.
func (r *Repository) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	if err := r.get(ctx, &account, `SELECT * FROM accounts WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByEmail retrieves an account by email address.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.get(ctx, &account, `SELECT * FROM accounts WHERE email = ?`, email); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByUsername retrieves an account by username.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	if err := r.get(ctx, &account, `SELECT * FROM accounts WHERE username = ?`, username); err != nil {
		return nil, err
	}
	return &account, nil
}

// AccountValueTaken checks if another account than excludeID already uses
// value in column. Pass 0 to check against all accounts.
func (r *Repository) AccountValueTaken(ctx context.Context, column, value string, excludeID int64) (bool, error) {
	if err := checkAccountColumn(column); err != nil {
		return false, err
	}
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE ` + column + ` = ? AND id != ?)`
	if err := r.get(ctx, &exists, query, value, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateAccountField sets a single column of an account.
func (r *Repository) UpdateAccountField(ctx context.Context, id int64, column, value string, updatedAt time.Time) error {
	if err := checkAccountColumn(column); err != nil {
		return err
	}
	res, err := r.exec(ctx,
		`UPDATE accounts SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, updatedAt, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteAccount deletes an account by ID.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CountAccounts returns the total number of accounts.
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.get(ctx, &count, `SELECT COUNT(*) FROM accounts`)
	return count, err
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
