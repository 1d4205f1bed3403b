// Package common defines shared constants and sentinel errors used across
// SealVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a lost insert race (two writers creating the same
	// content blob). It is retried internally and never surfaced to callers.
	ErrConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccessDenied covers every share-access failure: wrong password,
	// expired link, exhausted download quota, identity restriction, unknown
	// token. Deliberately a single value so the accessing party cannot
	// distinguish them.
	ErrAccessDenied = errors.New("access denied")

	// ErrQuotaExceeded is returned when accepting an upload would push the
	// owner past their configured storage limit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrStorageUnavailable is returned after bounded retries against the
	// object-storage backend have been exhausted.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidArgument is returned for requests that are malformed at the
	// service level, such as a declared size that does not match the
	// ciphertext actually sent.
	ErrInvalidArgument = errors.New("invalid argument")

	// Auth errors (invalid or malformed bearer token).
	ErrInvalidToken = errors.New("invalid token")
)
