package session

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"beacon/cmd/security/token"
)

// maxPresentedLen bounds presented values to avoid pathological inputs.
const maxPresentedLen = 4096

// subjectStripes is the size of the per-subject lock table. Rotation and mass
// revocation for the same subject serialize on one stripe; unrelated subjects
// almost never contend.
const subjectStripes = 64

// Service implements the high-level session operations for beacon.
//
// It issues credential pairs (access + renewable), rotates renewable
// credentials with at-most-once redemption and theft detection, and supports
// per-value and per-user revocation.
//
// Concurrency model: the store's Consume primitive decides the winner when the
// same value is presented concurrently. A per-subject lock stripe additionally
// serializes rotation against RevokeAll so that a mass revocation can never
// return while a concurrent rotation is about to persist a fresh record for
// the same subject.
type Service struct {
	cfg   Config
	codec Codec
	store Store

	locks [subjectStripes]sync.Mutex
}

// Issued is the result of issuing or rotating a session.
// It includes a short-lived access credential and a renewable credential.
type Issued struct {
	RecordID     string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service with the provided configuration, codec, and store.
func NewService(cfg Config, codec Codec, store Store) *Service {
	return &Service{cfg: cfg, codec: codec, store: store}
}

// IssueSession mints a fresh credential pair for userID bound to fp and
// persists the renewable record. Used on login and by rotation.
func (s *Service) IssueSession(ctx context.Context, now time.Time, userID string, fp Fingerprint) (Issued, error) {
	unlock := s.lockSubject(userID)
	defer unlock()

	return s.mint(ctx, now, userID, fp)
}

// Rotate exchanges a presented renewable credential for a fresh pair.
//
// Algorithm:
//  1. Verify signature and embedded expiry; failure maps to ErrInvalidOrExpired.
//  2. Atomically consume the matching store record; absence (never issued,
//     already rotated, or logged out) maps to ErrInvalidOrExpired. Consumption
//     is the at-most-once redemption point: under concurrent presentation of
//     the same value exactly one caller proceeds.
//  3. Compare the stored fingerprint with the presented one. A mismatch is a
//     theft signal: every renewable record for the subject is deleted and
//     ErrSuspiciousActivity is returned.
//  4. On match, mint and persist a fresh pair bound to the current fingerprint
//     with a full-length renewable TTL.
func (s *Service) Rotate(ctx context.Context, now time.Time, presented string, fp Fingerprint) (Issued, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxPresentedLen {
		return Issued{}, ErrInvalidOrExpired
	}

	claims, err := s.codec.Verify(presented, UseRefresh, now)
	if err != nil {
		return Issued{}, ErrInvalidOrExpired
	}

	// Hash in-memory; the plain value is never persisted.
	presentedHash := token.HashRefreshTokenHex(presented)

	unlock := s.lockSubject(claims.Subject)
	defer unlock()

	rec, err := s.store.Consume(ctx, claims.Subject, presentedHash)
	if err == ErrRecordNotFound {
		return Issued{}, ErrInvalidOrExpired
	}
	if err != nil {
		return Issued{}, err
	}

	if !rec.Fingerprint().Match(fp) {
		// Full session wipe across every device. Deliberate
		// denial-of-convenience: safety over availability.
		if err := s.store.DeleteAllForUser(ctx, claims.Subject); err != nil {
			return Issued{}, err
		}
		return Issued{}, ErrSuspiciousActivity
	}

	return s.mint(ctx, now, claims.Subject, fp)
}

// Logout deletes the record matching the presented renewable value if present.
// Absent or already-deleted records are treated as success, so repeated logout
// calls are safe. The signature is deliberately not verified: an expired or
// malformed value simply matches nothing.
func (s *Service) Logout(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxPresentedLen {
		return nil
	}
	return s.store.DeleteByHash(ctx, token.HashRefreshTokenHex(presented))
}

// RevokeAll deletes every renewable record for userID. Used by the anomaly
// path and exposed for administrative use.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	unlock := s.lockSubject(userID)
	defer unlock()

	return s.store.DeleteAllForUser(ctx, userID)
}

// VerifyAccess verifies an access credential and returns its subject.
func (s *Service) VerifyAccess(value string, now time.Time) (string, error) {
	claims, err := s.codec.Verify(value, UseAccess, now)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Sweep purges expired renewable records from the store.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.store.Sweep(ctx, now)
}

func (s *Service) mint(ctx context.Context, now time.Time, userID string, fp Fingerprint) (Issued, error) {
	accessToken, accessExp, err := s.codec.Issue(userID, UseAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return Issued{}, err
	}

	refreshToken, refreshExp, err := s.codec.Issue(userID, UseRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return Issued{}, err
	}

	rec := Record{
		ID:        ulid.Make().String(),
		UserID:    userID,
		TokenHash: token.HashRefreshTokenHex(refreshToken),
		IP:        fp.IP,
		UserAgent: fp.UserAgent,
		CreatedAt: now,
		ExpiresAt: refreshExp,
	}

	// Either both credentials are produced and the record persisted, or the
	// caller gets an error and no credential at all.
	if err := s.store.Create(ctx, rec); err != nil {
		return Issued{}, err
	}

	return Issued{
		RecordID:     rec.ID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *Service) lockSubject(subject string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	mu := &s.locks[h.Sum32()%subjectStripes]
	mu.Lock()
	return mu.Unlock
}
