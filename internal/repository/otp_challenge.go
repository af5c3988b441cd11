// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
)

// CreateOTPChallenge inserts a new challenge and sets its ID.
func (r *Repository) CreateOTPChallenge(ctx context.Context, challenge *models.OTPChallenge) error {
	res, err := r.exec(ctx,
		`INSERT INTO otp_challenges (account_id, code_hash, created_at, expires_at, used) VALUES (?, ?, ?, ?, 0)`,
		challenge.AccountID, challenge.CodeHash, challenge.CreatedAt, challenge.ExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	challenge.ID = id
	return nil
}

// GetUnusedOTPChallenge retrieves the outstanding challenge of an account.
func (r *Repository) GetUnusedOTPChallenge(ctx context.Context, accountID int64) (*models.OTPChallenge, error) {
	var challenge models.OTPChallenge
	err := r.get(ctx, &challenge,
		`SELECT * FROM otp_challenges WHERE account_id = ? AND used = 0 ORDER BY id DESC LIMIT 1`,
		accountID)
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// ListOTPChallenges returns all challenges of an account, oldest first.
func (r *Repository) ListOTPChallenges(ctx context.Context, accountID int64) ([]models.OTPChallenge, error) {
	var challenges []models.OTPChallenge
	err := r.selectAll(ctx, &challenges,
		`SELECT * FROM otp_challenges WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	return challenges, nil
}

// CountUnusedOTPChallenges returns the count of unused challenges.
func (r *Repository) CountUnusedOTPChallenges(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.get(ctx, &count,
		`SELECT COUNT(*) FROM otp_challenges WHERE account_id = ? AND used = 0`, accountID)
	return count, err
}

// InvalidateOTPChallenges marks every unused challenge of an account as used.
func (r *Repository) InvalidateOTPChallenges(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	res, err := r.exec(ctx,
		`UPDATE otp_challenges SET used = 1, used_at = ? WHERE account_id = ? AND used = 0`,
		at, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkOTPChallengeUsed marks a challenge as used. It reports false when the
// challenge was already used.
func (r *Repository) MarkOTPChallengeUsed(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.exec(ctx,
		`UPDATE otp_challenges SET used = 1, used_at = ? WHERE id = ? AND used = 0`,
		at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteOTPChallenges deletes all challenges of an account.
func (r *Repository) DeleteOTPChallenges(ctx context.Context, accountID int64) error {
	_, err := r.exec(ctx, `DELETE FROM otp_challenges WHERE account_id = ?`, accountID)
	return err
}
