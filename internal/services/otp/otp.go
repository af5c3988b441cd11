// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and redeems time-boxed one-time passcodes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
)

const (
	// CodeDigits is the number of digits of every code.
	CodeDigits = 6
	// TTL is how long an issued code can be redeemed.
	TTL = 10 * time.Minute

	minCode = 100000
	maxCode = 999999
)

var (
	ErrInvalid = errors.New("invalid or already used code")
	ErrExpired = errors.New("code expired")
)

// Challenge is the plaintext side of an issued code. It is never stored.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
}

// Engine issues and redeems codes for accounts.
type Engine struct {
	repo *repository.Repository
	now  func() time.Time
}

// NewEngine creates an engine that reads time from now. A nil now uses time.Now.
func NewEngine(repo *repository.Repository, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, now: now}
}

// Issue invalidates every outstanding code of the account and creates a new
// one, in a single transaction.
func (e *Engine) Issue(ctx context.Context, accountID int64) (*Challenge, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	challenge := &models.OTPChallenge{
		AccountID: accountID,
		CodeHash:  HashCode(code),
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	var invalidated int64
	err = e.repo.InTx(ctx, func(tx *repository.Repository) error {
		n, err := tx.InvalidateOTPChallenges(ctx, accountID, now)
		if err != nil {
			return fmt.Errorf("failed to invalidate challenges: %w", err)
		}
		invalidated = n
		if err := tx.CreateOTPChallenge(ctx, challenge); err != nil {
			if errors.Is(err, repository.ErrForeignKey) {
				return fmt.Errorf("%w: %d", accounts.ErrNotFound, accountID)
			}
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("otp_issued", "account_id", accountID, "challenge_id", challenge.ID, "invalidated", invalidated)
	return &Challenge{Code: code, ExpiresAt: challenge.ExpiresAt}, nil
}

// Redeem consumes the outstanding code of the account if it matches code and
// has not expired. Expired codes stay unused but can never be redeemed.
func (e *Engine) Redeem(ctx context.Context, accountID int64, code string) error {
	challenge, err := e.repo.GetUnusedOTPChallenge(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalid
		}
		return fmt.Errorf("failed to get challenge: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(challenge.CodeHash), []byte(HashCode(code))) != 1 {
		return ErrInvalid
	}

	now := e.now().UTC()
	if challenge.Expired(now) {
		return ErrExpired
	}

	ok, err := e.repo.MarkOTPChallengeUsed(ctx, challenge.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark challenge used: %w", err)
	}
	if !ok {
		// Another caller consumed it first.
		return ErrInvalid
	}
	return nil
}

// Invalidate marks every outstanding code of the account as used.
func (e *Engine) Invalidate(ctx context.Context, accountID int64) error {
	if _, err := e.repo.InvalidateOTPChallenges(ctx, accountID, e.now().UTC()); err != nil {
		return fmt.Errorf("failed to invalidate challenges: %w", err)
	}
	return nil
}

// GenerateCode returns a uniformly random code in 100000–999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()+minCode), nil
}

// HashCode computes the SHA256 hash of a code.
func HashCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}
