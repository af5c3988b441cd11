// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// LoginAttempt is an append-only audit entry of one terminal login outcome.
type LoginAttempt struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
	Success     bool      `db:"success" json:"success"`
}
