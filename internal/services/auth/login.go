// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"time"

	"codeberg.org/oliverandrich/go-otp-auth/internal/models"
	"github.com/google/uuid"
)

// State is a step of the login protocol.
type State int

const (
	AwaitingCredentials State = iota
	CredentialsVerified
	AwaitingOTP
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingCredentials:
		return "awaiting_credentials"
	case CredentialsVerified:
		return "credentials_verified"
	case AwaitingOTP:
		return "awaiting_otp"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Login is the in-memory state of one login. It belongs to a single caller
// and is not safe for concurrent use.
type Login struct {
	ID        uuid.UUID
	State     State
	Account   *models.Account
	Remaining int       // code attempts left while AwaitingOTP
	ExpiresAt time.Time // expiry of the outstanding code
}

func newLogin() *Login {
	return &Login{ID: uuid.New(), State: AwaitingCredentials}
}

// Authenticated reports whether the login completed both factors.
func (l *Login) Authenticated() bool {
	return l != nil && l.State == Authenticated && l.Account != nil
}

func (l *Login) reset() {
	l.State = AwaitingCredentials
	l.Account = nil
	l.Remaining = 0
	l.ExpiresAt = time.Time{}
}

func (l *Login) fail() {
	l.State = Failed
	l.Remaining = 0
}
