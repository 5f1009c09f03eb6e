package session

import "errors"

var (
	// ErrCredentialInvalid is returned when a credential fails signature or
	// structural verification.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrCredentialExpired is returned when a credential's embedded expiry has passed.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrInvalidOrExpired is the rotation-surface error covering bad signatures,
	// expired values, and already-consumed (or never-issued) values.
	ErrInvalidOrExpired = errors.New("invalid or expired renewable credential")

	// ErrSuspiciousActivity is returned when a presented renewable credential's
	// fingerprint does not match the stored one. By the time the caller sees this
	// error, every renewable record for the subject has been deleted.
	ErrSuspiciousActivity = errors.New("suspicious activity detected")

	// ErrRecordNotFound is returned by stores when no record matches a lookup key.
	ErrRecordNotFound = errors.New("session record not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
