package session

import (
	"context"
	"net"
	"time"
)

// Fingerprint is the device identity bound to a renewable credential at
// issuance. It is constructed once at the transport boundary and compared
// verbatim on every rotation attempt.
type Fingerprint struct {
	IP        net.IP
	UserAgent string
}

// Match reports whether two fingerprints are identical: exact address
// equality (absent addresses match each other) and exact user-agent equality.
func (f Fingerprint) Match(other Fingerprint) bool {
	if f.UserAgent != other.UserAgent {
		return false
	}
	if f.IP == nil && other.IP == nil {
		return true
	}
	if f.IP == nil || other.IP == nil {
		return false
	}
	return f.IP.Equal(other.IP)
}

// Record is the persisted form of an outstanding renewable credential.
// The credential value itself is never stored; TokenHash carries its
// HMAC-SHA256 (or SHA-256 fallback) hex digest.
type Record struct {
	ID        string
	UserID    string
	TokenHash string
	IP        net.IP
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Fingerprint reconstructs the device fingerprint bound to the record.
func (r Record) Fingerprint() Fingerprint {
	return Fingerprint{IP: r.IP, UserAgent: r.UserAgent}
}

// Store abstracts persistence for renewable-credential records.
//
// Consume is the rotation-safety primitive: it must atomically remove and
// return the record matching (userID, tokenHash) so that, under concurrent
// presentation of the same value, exactly one caller receives the record and
// all others observe ErrRecordNotFound.
type Store interface {
	// Create inserts a new record. TokenHash must be unique across all records.
	Create(ctx context.Context, rec Record) error

	// Consume atomically deletes and returns the record matching
	// (userID, tokenHash). Returns ErrRecordNotFound when no record matches.
	Consume(ctx context.Context, userID, tokenHash string) (Record, error)

	// DeleteByHash removes the single record with the given hash if present.
	// Deleting an absent record is not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteAllForUser removes every record belonging to userID.
	DeleteAllForUser(ctx context.Context, userID string) error

	// CountForUser reports how many records belong to userID.
	CountForUser(ctx context.Context, userID string) (int, error)

	// Sweep purges records whose embedded expiry has passed and reports how
	// many were removed. Stores whose backend expires records natively may
	// report zero.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Close releases store resources.
	Close() error
}
