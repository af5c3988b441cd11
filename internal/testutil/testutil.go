// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/database"
	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"codeberg.org/oliverandrich/go-otp-auth/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates a migrated SQLite database in a temporary directory.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestAccount creates a test account with email <username>@example.com.
func NewTestAccount(t *testing.T, repo *repository.Repository, username string) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	account := &models.Account{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "test-password-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

// Delivery is a single message captured by RecordingNotifier.
type Delivery struct {
	Destination string
	Code        string
}

// RecordingNotifier records deliveries instead of sending them.
type RecordingNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery

	// Err, when set, is returned from Deliver after recording the call.
	Err error
}

// Deliver records the delivery.
func (n *RecordingNotifier) Deliver(_ context.Context, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, Delivery{Destination: destination, Code: code})
	return n.Err
}

// Deliveries returns a copy of all recorded deliveries.
func (n *RecordingNotifier) Deliveries() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery(nil), n.deliveries...)
}

// LastCode returns the most recently delivered code, or "" if none.
func (n *RecordingNotifier) LastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		return ""
	}
	return n.deliveries[len(n.deliveries)-1].Code
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at a fixed UTC instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
