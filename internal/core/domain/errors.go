package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrInvalidInput       = errors.New("invalid input")

	ErrTokenMissing      = errors.New("no token presented")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")

	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("access forbidden")
	ErrPrincipalNotFound = errors.New("principal not found")

	ErrConflict    = errors.New("conflict")
	ErrInvalidRole = errors.New("invalid role")
	ErrLastRole    = errors.New("principal must keep at least one role")
)

// ConflictError reports which unique field collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already taken", e.Field)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflict returns a ConflictError for field.
func NewConflict(field string) error {
	return &ConflictError{Field: field}
}
