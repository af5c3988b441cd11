// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package accounts

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MaxEmailLength    = 100
)

// Field names used in validation and conflict errors.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateUsername checks username length.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength {
		return &ValidationError{
			Field:   FieldUsername,
			Code:    "too_short",
			Message: fmt.Sprintf("Username must be at least %d characters long.", MinUsernameLength),
		}
	}
	if n > MaxUsernameLength {
		return &ValidationError{
			Field:   FieldUsername,
			Code:    "too_long",
			Message: fmt.Sprintf("Username must be at most %d characters long.", MaxUsernameLength),
		}
	}
	return nil
}

// ValidateEmail checks email address syntax.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return &ValidationError{
			Field:   FieldEmail,
			Code:    "invalid_email",
			Message: "Email address is invalid.",
		}
	}
	return nil
}
