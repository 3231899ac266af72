package auth

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials and ErrAccountLocked are distinguishable only
	// internally (for logging and metrics); callers shaping responses must
	// collapse them into one outward failure.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account locked")

	// ErrUnauthorized covers every token failure: missing, expired,
	// unknown, or wrong kind.
	ErrUnauthorized = errors.New("unauthorized")

	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError lists every policy rule the input violated.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Failures, "; ")
}

func Validation(failures ...string) *ValidationError {
	return &ValidationError{Failures: failures}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
