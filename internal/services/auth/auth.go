// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth runs the two-factor login protocol and the operations of an
// authenticated account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/audit"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/otp"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/password"
)

// MaxOTPAttempts is the number of codes a login may submit per challenge.
const MaxOTPAttempts = 3

const defaultHistoryLimit = 10

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrChallengeExhausted = errors.New("too many wrong codes")
	ErrInvalidState       = errors.New("operation not allowed in this login state")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrDeliveryFailed     = errors.New("code delivery failed")

	ErrChallengeInvalid = otp.ErrInvalid
	ErrChallengeExpired = otp.ErrExpired
)

// Notifier delivers a code to an address.
type Notifier interface {
	Deliver(ctx context.Context, destination, code string) error
}

type Service struct {
	registry          *accounts.Registry
	engine            *otp.Engine
	auditor           *audit.Auditor
	hasher            *password.Hasher
	notifier          Notifier
	passwordValidator *PasswordValidator
	historyLimit      int
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	now func() time.Time
}

// WithClock makes the service read time from now.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig, notifier Notifier, opts ...Option) *Service {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	validator := DefaultPasswordValidator()
	if cfg.PasswordStrict {
		validator = StrictPasswordValidator(validator.MinLength)
	}
	if cfg.PasswordMinLength > 0 {
		validator.MinLength = cfg.PasswordMinLength
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &Service{
		registry:          accounts.NewRegistry(repo),
		engine:            otp.NewEngine(repo, o.now),
		auditor:           audit.NewAuditor(repo, o.now),
		hasher:            password.NewHasher(cfg.BcryptCost),
		notifier:          notifier,
		passwordValidator: validator,
		historyLimit:      historyLimit,
	}
}

// PasswordValidator returns the password policy in effect.
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// RegisterParams holds the parameters for account registration
type RegisterParams struct {
	Username string
	Email    string
	Password string
}

// Register creates a new account. Every malformed field is reported.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.Account, error) {
	username := strings.TrimSpace(params.Username)
	email := strings.TrimSpace(params.Email)

	if err := errors.Join(
		accounts.ValidateUsername(username),
		accounts.ValidateEmail(email),
		s.passwordValidator.Validate(params.Password, username, email),
	); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	return s.registry.Register(ctx, username, email, passwordHash)
}

// BeginLogin checks email and password. On success the login is
// CredentialsVerified; otherwise it is Failed and the error matches
// ErrInvalidCredentials.
func (s *Service) BeginLogin(ctx context.Context, email, plaintext string) (*Login, error) {
	login := newLogin()
	email = strings.TrimSpace(email)

	account, err := s.registry.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			s.hasher.VerifyDummy(plaintext)
			login.fail()
			slog.Warn("login_failed", "login_id", login.ID, "reason", "unknown_email")
			return login, ErrInvalidCredentials
		}
		return login, err
	}

	if !s.hasher.Verify(plaintext, account.PasswordHash) {
		login.fail()
		slog.Warn("login_failed", "login_id", login.ID, "account_id", account.ID, "reason", "invalid_password")
		if err := s.auditor.Record(ctx, account.ID, false); err != nil {
			return login, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return login, ErrInvalidCredentials
	}

	login.Account = account
	login.State = CredentialsVerified
	slog.Info("login_credentials_verified", "login_id", login.ID, "account_id", account.ID)
	return login, nil
}

// IssueChallenge creates a code for a CredentialsVerified login and delivers
// it to the account's email. The login moves to AwaitingOTP even when the
// delivery fails; that error matches ErrDeliveryFailed.
func (s *Service) IssueChallenge(ctx context.Context, login *Login) error {
	if login == nil || login.State != CredentialsVerified {
		return ErrInvalidState
	}

	challenge, err := s.engine.Issue(ctx, login.Account.ID)
	if err != nil {
		return err
	}

	login.State = AwaitingOTP
	login.Remaining = MaxOTPAttempts
	login.ExpiresAt = challenge.ExpiresAt
	slog.Info("login_challenge_issued", "login_id", login.ID, "account_id", login.Account.ID, "expires_at", challenge.ExpiresAt)

	if err := s.notifier.Deliver(ctx, login.Account.Email, challenge.Code); err != nil {
		slog.Error("login_delivery_failed", "login_id", login.ID, "account_id", login.Account.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// SubmitOTP redeems code for an AwaitingOTP login. A rejected code costs one
// attempt; the last one fails the login with ErrChallengeExhausted and
// invalidates the outstanding code.
func (s *Service) SubmitOTP(ctx context.Context, login *Login, code string) error {
	if login == nil || login.State != AwaitingOTP {
		return ErrInvalidState
	}
	accountID := login.Account.ID

	err := s.engine.Redeem(ctx, accountID, strings.TrimSpace(code))
	switch {
	case err == nil:
		if err := s.auditor.Record(ctx, accountID, true); err != nil {
			login.fail()
			return err
		}
		login.State = Authenticated
		login.Remaining = 0
		slog.Info("login_success", "login_id", login.ID, "account_id", accountID)
		return nil

	case errors.Is(err, otp.ErrInvalid), errors.Is(err, otp.ErrExpired):
		login.Remaining--
		if login.Remaining > 0 {
			slog.Warn("login_otp_rejected", "login_id", login.ID, "account_id", accountID, "reason", err, "remaining", login.Remaining)
			return err
		}

		login.fail()
		if invErr := s.engine.Invalidate(ctx, accountID); invErr != nil {
			slog.Error("login_invalidate_failed", "login_id", login.ID, "account_id", accountID, "error", invErr)
		}
		slog.Warn("login_exhausted", "login_id", login.ID, "account_id", accountID)
		return fmt.Errorf("%w: %w", ErrChallengeExhausted, err)

	default:
		return err
	}
}

// Logout ends the login. It can start over with BeginLogin.
func (s *Service) Logout(login *Login) {
	if login == nil {
		return
	}
	if login.Account != nil {
		slog.Info("logout", "login_id", login.ID, "account_id", login.Account.ID)
	}
	login.reset()
}

// Profile returns the current account record.
func (s *Service) Profile(ctx context.Context, login *Login) (*models.Account, error) {
	if !login.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	account, err := s.registry.FindByID(ctx, login.Account.ID)
	if err != nil {
		return nil, err
	}
	login.Account = account
	return account, nil
}

// ProfileUpdate holds optional profile changes. A nil field is left untouched.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// UpdateProfile applies every present field that is valid and not taken by
// another account. It returns the stored account and, if anything was
// rejected, the joined validation and conflict errors.
func (s *Service) UpdateProfile(ctx context.Context, login *Login, update ProfileUpdate) (*models.Account, error) {
	if !login.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var (
		patch    accounts.Patch
		problems []error
	)

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		patch.Username = &username
	}
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		patch.Email = &email
	}
	if update.Password != nil {
		username, email := login.Account.Username, login.Account.Email
		if patch.Username != nil {
			username = *patch.Username
		}
		if patch.Email != nil {
			email = *patch.Email
		}

		if err := s.passwordValidator.Validate(*update.Password, username, email); err != nil {
			problems = append(problems, err)
		} else {
			digest, err := s.hasher.Hash(*update.Password)
			if err != nil {
				return nil, err
			}
			patch.PasswordHash = &digest
		}
	}

	account, err := s.registry.Update(ctx, login.Account.ID, patch)
	if account == nil {
		return nil, err
	}
	login.Account = account
	return account, errors.Join(append(problems, err)...)
}

// DeleteAccount removes the account with its history and codes, and resets
// the login.
func (s *Service) DeleteAccount(ctx context.Context, login *Login) error {
	if !login.Authenticated() {
		return ErrNotAuthenticated
	}

	if err := s.registry.Delete(ctx, login.Account.ID); err != nil {
		return err
	}
	login.reset()
	return nil
}

// GetHistory returns up to limit login attempts, most recent first. A limit
// of zero or less uses the configured default.
func (s *Service) GetHistory(ctx context.Context, login *Login, limit int) ([]models.LoginAttempt, error) {
	if !login.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.auditor.RecentHistory(ctx, login.Account.ID, limit)
}

// ClearHistory deletes every login attempt of the account and returns the
// number removed.
func (s *Service) ClearHistory(ctx context.Context, login *Login) (int64, error) {
	if !login.Authenticated() {
		return 0, ErrNotAuthenticated
	}

	n, err := s.auditor.Clear(ctx, login.Account.ID)
	if err != nil {
		return 0, err
	}
	slog.Info("history_cleared", "account_id", login.Account.ID, "removed", n)
	return n, nil
}
