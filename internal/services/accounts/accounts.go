// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package accounts owns account records and keeps usernames and emails unique.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
)

// Registry creates, updates, deletes and looks up accounts.
type Registry struct {
	repo *repository.Repository
}

// NewRegistry creates a registry on top of repo.
func NewRegistry(repo *repository.Repository) *Registry {
	return &Registry{repo: repo}
}

// Patch holds optional profile changes. A nil field is left untouched.
type Patch struct {
	Username     *string
	Email        *string
	PasswordHash *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil
}

// Register creates a new account. Username and email must not be used by
// any other account.
func (r *Registry) Register(ctx context.Context, username, email, passwordHash string) (*models.Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, &ValidationError{Field: FieldPassword, Code: "required", Message: "Password is required."}
	}

	// Fast path for a clean error; the unique constraints stay authoritative.
	for _, check := range []struct{ column, value string }{
		{repository.ColumnUsername, username},
		{repository.ColumnEmail, email},
	} {
		taken, err := r.repo.AccountValueTaken(ctx, check.column, check.value, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing account: %w", err)
		}
		if taken {
			return nil, &ConflictError{Fields: []string{check.column}}
		}
	}

	now := time.Now().UTC()
	account := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.repo.CreateAccount(ctx, account); err != nil {
		var uniqueErr *repository.UniqueError
		if errors.As(err, &uniqueErr) {
			return nil, &ConflictError{Fields: []string{uniqueErr.Column}}
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account_registered", "account_id", account.ID, "username", account.Username)
	return account, nil
}

// patchField is one column of a Patch resolved on its own.
type patchField struct {
	field    string
	column   string
	value    *string
	validate func(string) error
	unique   bool
}

// Update applies every present field of patch that is valid and does not
// collide with another account. Rejected fields never block the others: the
// returned account reflects what was applied, and the error (if any) joins a
// ValidationError per malformed field and one ConflictError listing the
// colliding fields. An empty patch is a no-op.
func (r *Registry) Update(ctx context.Context, accountID int64, patch Patch) (*models.Account, error) {
	if patch.Empty() {
		return r.FindByID(ctx, accountID)
	}

	fields := []patchField{
		{field: FieldUsername, column: repository.ColumnUsername, value: patch.Username, validate: ValidateUsername, unique: true},
		{field: FieldEmail, column: repository.ColumnEmail, value: patch.Email, validate: ValidateEmail, unique: true},
		{field: FieldPassword, column: repository.ColumnPasswordHash, value: patch.PasswordHash, validate: requireHash},
	}

	var (
		account  *models.Account
		problems []error
		rejected []string
		applied  []string
	)

	err := r.repo.InTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.GetAccountByID(ctx, accountID); err != nil {
			return mapNotFound(err)
		}

		now := time.Now().UTC()
		for _, f := range fields {
			if f.value == nil {
				continue
			}
			if err := f.validate(*f.value); err != nil {
				problems = append(problems, err)
				continue
			}
			if f.unique {
				taken, err := tx.AccountValueTaken(ctx, f.column, *f.value, accountID)
				if err != nil {
					return fmt.Errorf("failed to check %s: %w", f.field, err)
				}
				if taken {
					rejected = append(rejected, f.field)
					continue
				}
			}
			if err := tx.UpdateAccountField(ctx, accountID, f.column, *f.value, now); err != nil {
				if repository.IsUnique(err, f.column) {
					rejected = append(rejected, f.field)
					continue
				}
				return fmt.Errorf("failed to update %s: %w", f.field, err)
			}
			applied = append(applied, f.field)
		}

		var err error
		account, err = tx.GetAccountByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		slog.Info("account_updated", "account_id", accountID, "fields", applied)
	}
	if len(rejected) > 0 {
		slog.Warn("account_update_conflict", "account_id", accountID, "fields", rejected)
		problems = append(problems, &ConflictError{Fields: rejected})
	}
	return account, errors.Join(problems...)
}

// Delete removes the account together with its challenges and login attempts.
func (r *Registry) Delete(ctx context.Context, accountID int64) error {
	err := r.repo.InTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.GetAccountByID(ctx, accountID); err != nil {
			return mapNotFound(err)
		}
		if err := tx.DeleteOTPChallenges(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete challenges: %w", err)
		}
		if _, err := tx.DeleteLoginAttempts(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete login attempts: %w", err)
		}
		if err := tx.DeleteAccount(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("account_deleted", "account_id", accountID)
	return nil
}

// FindByID retrieves an account by ID.
func (r *Registry) FindByID(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := r.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return account, nil
}

// FindByEmail retrieves an account by email address.
func (r *Registry) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := r.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return account, nil
}

func requireHash(hash string) error {
	if hash == "" {
		return &ValidationError{Field: FieldPassword, Code: "required", Message: "Password is required."}
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("failed to get account: %w", err)
}
