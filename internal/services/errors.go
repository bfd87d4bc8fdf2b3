package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidCredentials covers every login failure: unknown email, inactive
// account, and wrong password all collapse to this one kind so callers
// cannot enumerate accounts.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotAuthenticated is returned when no usable bearer token accompanies
// a request.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrForbidden is returned when an authenticated user's role is outside
// the allowed set.
var ErrForbidden = errors.New("forbidden")

// ErrTokenInvalidOrExpired is returned when a reset token does not match
// any pending reset or its window has passed.
var ErrTokenInvalidOrExpired = errors.New("token is invalid or has expired")

// ErrIdentityNotFound is returned when a bearer token's subject no longer
// resolves to an active user.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrPasswordChanged is returned when a bearer token predates the
// subject's most recent password change.
var ErrPasswordChanged = errors.New("password changed after token was issued")

// ErrNotificationFailed is returned when an email the flow depends on
// could not be queued.
var ErrNotificationFailed = errors.New("failed to send notification")

// ValidationError reports per-field input failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) add(field, message string) {
	e.Fields[field] = message
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
