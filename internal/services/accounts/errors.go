// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package accounts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("account not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("account already exists")
)

// ValidationError describes a malformed input field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError names the fields whose values belong to another account.
type ConflictError struct {
	Fields []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already taken", strings.Join(e.Fields, " and "))
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// HasField reports whether field is among the conflicting fields.
func (e *ConflictError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}
