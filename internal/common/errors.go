// Package common defines shared constants, helpers and errors used across
// client and server layers of StaffKeeper. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrDuplicateLogin = errors.New("login already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Authentication outcomes.
	ErrInvalidCredential = errors.New("invalid login or password")
	ErrAccountLocked     = errors.New("account locked")

	// Account management outcomes.
	ErrGovernanceConflict  = errors.New("territory already has a privileged account")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrValidation          = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// CredentialError reports a failed authentication. It is returned both for
// unknown logins and wrong passwords, so callers cannot tell them apart.
type CredentialError struct {
	AttemptsRemaining int
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s (%d attempts remaining)", ErrInvalidCredential, e.AttemptsRemaining)
}

func (e *CredentialError) Unwrap() error { return ErrInvalidCredential }

// LockedError is returned while an account is locked. Persisted is false when
// the lock could not be written to the store even after retries.
type LockedError struct {
	Remaining time.Duration
	Persisted bool
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s for %s", ErrAccountLocked, e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// GovernanceConflictError names the principal already holding the privileged
// seat of a territory.
type GovernanceConflictError struct {
	Territory string
	Login     string
	Role      string
}

func (e *GovernanceConflictError) Error() string {
	return fmt.Sprintf("%s: %s is held by %s (%s)", ErrGovernanceConflict, e.Territory, e.Login, e.Role)
}

func (e *GovernanceConflictError) Unwrap() error { return ErrGovernanceConflict }

// AuthorizationError carries the name of the rule that denied the operation.
type AuthorizationError struct {
	Rule string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthorizationDenied, e.Rule)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorizationDenied }

// ValidationError describes an input rejected before reaching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Denied is a shorthand for building an AuthorizationError.
func Denied(rule string) error {
	return &AuthorizationError{Rule: rule}
}

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
