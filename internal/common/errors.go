// Package common defines sentinel errors shared across the service layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Request validation errors.
	ErrValidation = errors.New("validation failed")

	// Auth errors.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInactiveUser       = errors.New("inactive user")
	ErrForbidden          = errors.New("admin privileges required")

	// User management errors.
	ErrSelfDeletion = errors.New("self deletion is not allowed")

	// Relay errors.
	ErrConfigMissing = errors.New("dify configuration missing")
)
