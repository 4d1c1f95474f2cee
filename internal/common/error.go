// Package common defines shared constants and sentinel errors used across
// client and server layers of CipherChat. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Cryptographic errors. Never swallowed: proceeding with bad key
	// material is a security defect, so these always propagate.
	ErrKeyDerivation = errors.New("key derivation error")
	ErrEncryption    = errors.New("encryption error")
	ErrDecryption    = errors.New("decryption error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
