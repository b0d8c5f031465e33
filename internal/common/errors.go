// Package common defines shared constants and sentinel errors used across
// the forum server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors. ErrBadSignature covers tampered and malformed tokens,
	// ErrTokenExpired covers tokens whose exp is not after the check time.
	ErrBadSignature = errors.New("bad token signature")
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when a verified token carries an unusable subject.
	ErrInvalidToken = errors.New("invalid token")
)
