// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package audit_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
	"codeberg.org/oliverandrich/go-otp-auth/internal/services/audit"
	"codeberg.org/oliverandrich/go-otp-auth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AndRecentHistory(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock()
	auditor := audit.NewAuditor(repo, clock.Now)
	ctx := context.Background()

	alice := testutil.NewTestAccount(t, repo, "alice")

	require.NoError(t, auditor.Record(ctx, alice.ID, false))
	clock.Advance(time.Minute)
	require.NoError(t, auditor.Record(ctx, alice.ID, true))

	history, err := auditor.RecentHistory(ctx, alice.ID, 10)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Success, "most recent first")
	assert.False(t, history[1].Success)
	assert.True(t, history[0].AttemptedAt.Equal(clock.Now()))
}

func TestRecentHistory_Limit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock()
	auditor := audit.NewAuditor(repo, clock.Now)
	ctx := context.Background()

	alice := testutil.NewTestAccount(t, repo, "alice")
	for range 12 {
		require.NoError(t, auditor.Record(ctx, alice.ID, true))
		clock.Advance(time.Second)
	}

	history, err := auditor.RecentHistory(ctx, alice.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 10)

	history, err = auditor.RecentHistory(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	history, err = auditor.RecentHistory(ctx, alice.ID, -1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRecentHistory_SameInstantOrderedByInsertion(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock()
	auditor := audit.NewAuditor(repo, clock.Now)
	ctx := context.Background()

	alice := testutil.NewTestAccount(t, repo, "alice")
	require.NoError(t, auditor.Record(ctx, alice.ID, false))
	require.NoError(t, auditor.Record(ctx, alice.ID, true))

	history, err := auditor.RecentHistory(ctx, alice.ID, 10)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Success)
	assert.Greater(t, history[0].ID, history[1].ID)
}

func TestRecord_UnknownAccount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	auditor := audit.NewAuditor(repo, nil)

	err := auditor.Record(context.Background(), 999, true)

	assert.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestClear(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	auditor := audit.NewAuditor(repo, nil)
	ctx := context.Background()

	alice := testutil.NewTestAccount(t, repo, "alice")
	bob := testutil.NewTestAccount(t, repo, "bob")
	for range 3 {
		require.NoError(t, auditor.Record(ctx, alice.ID, true))
	}
	require.NoError(t, auditor.Record(ctx, bob.ID, true))

	n, err := auditor.Clear(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	history, err := auditor.RecentHistory(ctx, alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = auditor.RecentHistory(ctx, bob.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	n, err = auditor.Clear(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
