package authapi

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is returned by IdentityVerifier implementations for
// unknown users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("authapi: invalid credentials")

// IdentityVerifier checks a username/password pair and resolves the user id.
// User storage lives outside this service; implementations are expected to
// build on the cmd/security/password primitives.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, username, password string) (userID string, err error)
}
