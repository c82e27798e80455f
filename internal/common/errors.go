// Package common provides shared utilities and types used across the engine.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Parsing errors.
	ErrUnsupportedFormat = errors.New("unsupported statement format")
	ErrEmptyStatement    = errors.New("statement contains no data")

	// Storage errors.
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")

	// Rule errors.
	ErrUnknownRule = errors.New("unknown rule")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
