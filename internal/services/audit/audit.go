// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package audit records and queries the login-attempt history of accounts.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
)

// Auditor appends login attempts and reads them back.
type Auditor struct {
	repo *repository.Repository
	now  func() time.Time
}

// NewAuditor creates an auditor that stamps attempts with now. A nil now uses
// time.Now.
func NewAuditor(repo *repository.Repository, now func() time.Time) *Auditor {
	if now == nil {
		now = time.Now
	}
	return &Auditor{repo: repo, now: now}
}

// Record appends one attempt for the account.
func (a *Auditor) Record(ctx context.Context, accountID int64, success bool) error {
	attempt := &models.LoginAttempt{
		AccountID:   accountID,
		AttemptedAt: a.now().UTC(),
		Success:     success,
	}
	if err := a.repo.CreateLoginAttempt(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return fmt.Errorf("%w: %d", accounts.ErrNotFound, accountID)
		}
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit attempts, most recent first.
func (a *Auditor) RecentHistory(ctx context.Context, accountID int64, limit int) ([]models.LoginAttempt, error) {
	if limit <= 0 {
		return []models.LoginAttempt{}, nil
	}
	attempts, err := a.repo.ListRecentLoginAttempts(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	return attempts, nil
}

// Clear deletes every attempt of the account and returns how many were removed.
func (a *Auditor) Clear(ctx context.Context, accountID int64) (int64, error) {
	n, err := a.repo.DeleteLoginAttempts(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return n, nil
}
