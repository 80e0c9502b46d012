// Package common defines shared constants and sentinel errors used across
// vaultbox components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Request validation errors.
	ErrValidation   = errors.New("validation error")
	ErrTooManyFiles = errors.New("too many files")
	ErrFileTooLarge = errors.New("file too large")

	// Auth errors. ErrAuthRequired means no credential was presented at all;
	// the others mean a credential was presented and rejected.
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenFileMismatch = errors.New("token not valid for this file")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrDatabase = errors.New("database error")

	// Blob and cipher errors.
	ErrStorage    = errors.New("storage error")
	ErrDecrypt    = errors.New("decryption failed")
	ErrUnknownKey = errors.New("unknown encryption key")
)
