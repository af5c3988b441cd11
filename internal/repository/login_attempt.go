// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
)

// CreateLoginAttempt appends a login attempt and sets its ID.
func (r *Repository) CreateLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	res, err := r.exec(ctx,
		`INSERT INTO login_attempts (account_id, attempted_at, success) VALUES (?, ?, ?)`,
		attempt.AccountID, attempt.AttemptedAt, attempt.Success)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	attempt.ID = id
	return nil
}

// ListRecentLoginAttempts returns up to limit attempts, most recent first.
func (r *Repository) ListRecentLoginAttempts(ctx context.Context, accountID int64, limit int) ([]models.LoginAttempt, error) {
	attempts := []models.LoginAttempt{}
	err := r.selectAll(ctx, &attempts,
		`SELECT * FROM login_attempts WHERE account_id = ? ORDER BY attempted_at DESC, id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// CountLoginAttempts returns the number of attempts with the given outcome.
func (r *Repository) CountLoginAttempts(ctx context.Context, accountID int64, success bool) (int64, error) {
	var count int64
	err := r.get(ctx, &count,
		`SELECT COUNT(*) FROM login_attempts WHERE account_id = ? AND success = ?`, accountID, success)
	return count, err
}

// DeleteLoginAttempts deletes all attempts of an account.
func (r *Repository) DeleteLoginAttempts(ctx context.Context, accountID int64) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM login_attempts WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
