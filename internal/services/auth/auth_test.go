// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/config"
	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-otp-auth/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc      *auth.Service
	repo     *repository.Repository
	notifier *testutil.RecordingNotifier
	clock    *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	notifier := &testutil.RecordingNotifier{}
	clock := testutil.NewClock()
	cfg := &config.AuthConfig{BcryptCost: bcrypt.MinCost, PasswordMinLength: 6, HistoryLimit: 10}
	return &fixture{
		svc:      auth.NewService(repo, cfg, notifier, auth.WithClock(clock.Now)),
		repo:     repo,
		notifier: notifier,
		clock:    clock,
	}
}

func (f *fixture) register(t *testing.T, username, password string) *models.Account {
	t.Helper()
	account, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	})
	require.NoError(t, err)
	return account
}

// login runs both factors and returns an authenticated login.
func (f *fixture) login(t *testing.T, email, password string) *auth.Login {
	t.Helper()
	ctx := context.Background()
	login, err := f.svc.BeginLogin(ctx, email, password)
	require.NoError(t, err)
	require.NoError(t, f.svc.IssueChallenge(ctx, login))
	require.NoError(t, f.svc.SubmitOTP(ctx, login, f.notifier.LastCode()))
	require.Equal(t, auth.Authenticated, login.State)
	return login
}

func wrongCode(code string) string {
	n, _ := strconv.Atoi(code)
	if n == 999999 {
		return "100000"
	}
	return strconv.Itoa(n + 1)
}

func ptr(s string) *string { return &s }

func TestRegister(t *testing.T) {
	f := newFixture(t)

	account, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})

	require.NoError(t, err)
	assert.NotZero(t, account.ID)
	assert.NotEqual(t, "secret123", account.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("secret123")))
}

func TestRegister_TrimsInput(t *testing.T) {
	f := newFixture(t)

	account, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Username: "  alice ",
		Email:    " alice@example.com ",
		Password: "secret123",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")

	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Username: "alice",
		Email:    "other@example.com",
		Password: "secret123",
	})

	var conflict *accounts.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.HasField(accounts.FieldUsername))
}

func TestRegister_ReportsEveryInvalidField(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), auth.RegisterParams{
		Username: "al",
		Email:    "alice@",
		Password: "123",
	})

	require.ErrorIs(t, err, accounts.ErrValidation)
	fields := map[string]bool{}
	for _, e := range flatten(err) {
		var verr *accounts.ValidationError
		if errors.As(e, &verr) {
			fields[verr.Field] = true
		}
	}
	assert.True(t, fields[accounts.FieldUsername])
	assert.True(t, fields[accounts.FieldEmail])
	assert.True(t, fields[accounts.FieldPassword])

	count, err := f.repo.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func TestBeginLogin(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")

	login, err := f.svc.BeginLogin(context.Background(), "alice@example.com", "secret123")

	require.NoError(t, err)
	assert.Equal(t, auth.CredentialsVerified, login.State)
	assert.Equal(t, alice.ID, login.Account.ID)
	assert.NotEqual(t, uuid.Nil, login.ID)

	// Verified credentials alone leave no trace in the history.
	attempts, err := f.repo.ListRecentLoginAttempts(context.Background(), alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestBeginLogin_WrongPasswordIsAudited(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")

	login, err := f.svc.BeginLogin(context.Background(), "alice@example.com", "wrongpass")

	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, auth.Failed, login.State)
	assert.Nil(t, login.Account)

	failed, err := f.repo.CountLoginAttempts(context.Background(), alice.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}

func TestBeginLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")

	login, err := f.svc.BeginLogin(context.Background(), "nobody@example.com", "secret123")

	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, auth.Failed, login.State)

	attempts, err := f.repo.ListRecentLoginAttempts(context.Background(), alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestIssueChallenge(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, f.svc.IssueChallenge(ctx, login))

	assert.Equal(t, auth.AwaitingOTP, login.State)
	assert.Equal(t, auth.MaxOTPAttempts, login.Remaining)
	assert.True(t, login.ExpiresAt.Equal(f.clock.Now().Add(10*time.Minute)))

	deliveries := f.notifier.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "alice@example.com", deliveries[0].Destination)
	assert.Len(t, deliveries[0].Code, 6)
}

func TestIssueChallenge_DeliveryFailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	f.notifier.Err = errors.New("relay down")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	err = f.svc.IssueChallenge(ctx, login)

	require.ErrorIs(t, err, auth.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "relay down")
	assert.Equal(t, auth.AwaitingOTP, login.State)

	require.NoError(t, f.svc.SubmitOTP(ctx, login, f.notifier.LastCode()))
	assert.Equal(t, auth.Authenticated, login.State)
}

func TestIssueChallenge_RequiresVerifiedCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	failed, _ := f.svc.BeginLogin(ctx, "alice@example.com", "wrongpass")
	assert.ErrorIs(t, f.svc.IssueChallenge(ctx, failed), auth.ErrInvalidState)
	assert.ErrorIs(t, f.svc.IssueChallenge(ctx, nil), auth.ErrInvalidState)

	login := f.login(t, "alice@example.com", "secret123")
	assert.ErrorIs(t, f.svc.IssueChallenge(ctx, login), auth.ErrInvalidState)

	assert.Len(t, f.notifier.Deliveries(), 1)
}

func TestSubmitOTP_Success(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")

	login := f.login(t, "alice@example.com", "secret123")

	assert.True(t, login.Authenticated())
	assert.Zero(t, login.Remaining)

	succeeded, err := f.repo.CountLoginAttempts(context.Background(), alice.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), succeeded)
}

func TestSubmitOTP_RequiresAwaitingOTP(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.SubmitOTP(ctx, login, "123456"), auth.ErrInvalidState)
	assert.ErrorIs(t, f.svc.SubmitOTP(ctx, nil, "123456"), auth.ErrInvalidState)
}

func TestSubmitOTP_WrongCodeThenRight(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.svc.IssueChallenge(ctx, login))
	code := f.notifier.LastCode()

	err = f.svc.SubmitOTP(ctx, login, wrongCode(code))
	require.ErrorIs(t, err, auth.ErrChallengeInvalid)
	assert.Equal(t, auth.AwaitingOTP, login.State)
	assert.Equal(t, 2, login.Remaining)

	require.NoError(t, f.svc.SubmitOTP(ctx, login, " "+code+" "))
	assert.Equal(t, auth.Authenticated, login.State)
}

func TestSubmitOTP_Exhaustion(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.svc.IssueChallenge(ctx, login))
	code := f.notifier.LastCode()
	wrong := wrongCode(code)

	for remaining := 2; remaining > 0; remaining-- {
		err = f.svc.SubmitOTP(ctx, login, wrong)
		require.ErrorIs(t, err, auth.ErrChallengeInvalid)
		require.NotErrorIs(t, err, auth.ErrChallengeExhausted)
		assert.Equal(t, remaining, login.Remaining)
	}

	err = f.svc.SubmitOTP(ctx, login, wrong)

	require.ErrorIs(t, err, auth.ErrChallengeExhausted)
	assert.ErrorIs(t, err, auth.ErrChallengeInvalid)
	assert.Equal(t, auth.Failed, login.State)

	// The login is over, and so is the code.
	assert.ErrorIs(t, f.svc.SubmitOTP(ctx, login, code), auth.ErrInvalidState)
	unused, err := f.repo.CountUnusedOTPChallenges(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, unused)

	// Exhaustion leaves neither a success nor a failure row.
	attempts, err := f.repo.ListRecentLoginAttempts(ctx, alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestSubmitOTP_Expired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	login, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.svc.IssueChallenge(ctx, login))

	f.clock.Advance(11 * time.Minute)

	err = f.svc.SubmitOTP(ctx, login, f.notifier.LastCode())

	require.ErrorIs(t, err, auth.ErrChallengeExpired)
	assert.Equal(t, auth.AwaitingOTP, login.State)
	assert.Equal(t, 2, login.Remaining)
}

func TestFullLogin_HistoryOrdering(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	_, err := f.svc.BeginLogin(ctx, "alice@example.com", "wrongpass")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	f.clock.Advance(time.Minute)

	login := f.login(t, "alice@example.com", "secret123")

	history, err := f.svc.GetHistory(ctx, login, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Success)
	assert.False(t, history[1].Success)
	assert.True(t, history[0].AttemptedAt.After(history[1].AttemptedAt))
}

func TestAuthenticatedOperations_RequireAuthentication(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	pending, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	for _, login := range []*auth.Login{nil, pending} {
		_, err = f.svc.Profile(ctx, login)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		_, err = f.svc.UpdateProfile(ctx, login, auth.ProfileUpdate{Username: ptr("mallory")})
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		assert.ErrorIs(t, f.svc.DeleteAccount(ctx, login), auth.ErrNotAuthenticated)
		_, err = f.svc.GetHistory(ctx, login, 10)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		_, err = f.svc.ClearHistory(ctx, login)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	}
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")
	login := f.login(t, "alice@example.com", "secret123")

	account, err := f.svc.Profile(context.Background(), login)

	require.NoError(t, err)
	assert.Equal(t, alice.ID, account.ID)
	assert.Equal(t, "alice", account.Username)
}

func TestUpdateProfile_Password(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()
	login := f.login(t, "alice@example.com", "secret123")

	_, err := f.svc.UpdateProfile(ctx, login, auth.ProfileUpdate{Password: ptr("n3w-passphrase")})
	require.NoError(t, err)
	f.svc.Logout(login)

	_, err = f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	f.login(t, "alice@example.com", "n3w-passphrase")
}

func TestUpdateProfile_ConflictKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	f.register(t, "bob", "secret123")
	login := f.login(t, "alice@example.com", "secret123")

	account, err := f.svc.UpdateProfile(context.Background(), login, auth.ProfileUpdate{
		Username: ptr("bob"),
		Email:    ptr("alice.new@example.com"),
	})

	var conflict *accounts.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{accounts.FieldUsername}, conflict.Fields)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice.new@example.com", account.Email)
	assert.Equal(t, "alice.new@example.com", login.Account.Email)
}

func TestUpdateProfile_WeakPasswordKeepsOtherFields(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")
	login := f.login(t, "alice@example.com", "secret123")

	account, err := f.svc.UpdateProfile(context.Background(), login, auth.ProfileUpdate{
		Username: ptr("alice2"),
		Password: ptr("123"),
	})

	var verr *accounts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, accounts.FieldPassword, verr.Field)
	assert.Equal(t, "alice2", account.Username)
	assert.Equal(t, alice.PasswordHash, account.PasswordHash)
}

func TestUpdateProfile_Empty(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	login := f.login(t, "alice@example.com", "secret123")

	account, err := f.svc.UpdateProfile(context.Background(), login, auth.ProfileUpdate{})

	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "secret123")
	ctx := context.Background()
	login := f.login(t, "alice@example.com", "secret123")

	require.NoError(t, f.svc.DeleteAccount(ctx, login))

	assert.Equal(t, auth.AwaitingCredentials, login.State)
	assert.Nil(t, login.Account)

	_, err := f.svc.BeginLogin(ctx, "alice@example.com", "secret123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	attempts, err := f.repo.ListRecentLoginAttempts(ctx, alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	challenges, err := f.repo.ListOTPChallenges(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, challenges)

	// The username is free again.
	f.register(t, "alice", "secret123")
}

func TestGetHistory_DefaultLimit(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	for range 12 {
		_, err := f.svc.BeginLogin(ctx, "alice@example.com", "wrongpass")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
		f.clock.Advance(time.Second)
	}
	login := f.login(t, "alice@example.com", "secret123")

	history, err := f.svc.GetHistory(ctx, login, 0)
	require.NoError(t, err)
	assert.Len(t, history, 10)
	assert.True(t, history[0].Success)

	history, err = f.svc.GetHistory(ctx, login, 3)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	ctx := context.Background()

	_, _ = f.svc.BeginLogin(ctx, "alice@example.com", "wrongpass")
	login := f.login(t, "alice@example.com", "secret123")

	n, err := f.svc.ClearHistory(ctx, login)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	history, err := f.svc.GetHistory(ctx, login, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "secret123")
	login := f.login(t, "alice@example.com", "secret123")

	f.svc.Logout(login)

	assert.Equal(t, auth.AwaitingCredentials, login.State)
	assert.False(t, login.Authenticated())
	_, err := f.svc.Profile(context.Background(), login)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	f.svc.Logout(nil)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_otp", auth.AwaitingOTP.String())
	assert.Equal(t, "failed", auth.Failed.String())
	assert.Equal(t, "unknown", auth.State(42).String())
}

func TestNewService_StrictPolicy(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	svc := auth.NewService(repo, &config.AuthConfig{BcryptCost: bcrypt.MinCost, PasswordMinLength: 8, PasswordStrict: true}, &testutil.RecordingNotifier{})

	v := svc.PasswordValidator()
	assert.Equal(t, 8, v.MinLength)
	assert.True(t, v.CheckCommonPasswords)

	_, err := svc.Register(context.Background(), auth.RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password",
	})
	assert.ErrorIs(t, err, accounts.ErrValidation)
}
