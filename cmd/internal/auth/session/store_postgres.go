package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (beacon.sessions).
//
// The single-statement DELETE ... RETURNING in Consume is the atomic
// delete-and-return primitive rotation safety relies on.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "beacon").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("session: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}

	st := &PostgresStore{pool: pool, schema: "beacon"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Close closes the store. The pool is owned by the caller; this is a no-op.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "sessions")
}

// Create inserts a new session record.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, user_id, token_hash, ip, user_agent, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.TokenHash, ipText(rec.IP), nullIfEmpty(rec.UserAgent), rec.CreatedAt, rec.ExpiresAt)
	return err
}

// Consume deletes and returns the record matching (userID, tokenHash) in a
// single statement.
func (s *PostgresStore) Consume(ctx context.Context, userID, tokenHash string) (Record, error) {
	var (
		rec Record
		ip  *string
		ua  *string
	)

	err := s.pool.QueryRow(ctx, `
		DELETE FROM `+s.table()+`
		WHERE user_id = $1 AND token_hash = $2
		RETURNING id, user_id, token_hash, ip, user_agent, created_at, expires_at
	`, userID, tokenHash).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&ip,
		&ua,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	if ip != nil {
		rec.IP = net.ParseIP(*ip)
	}
	if ua != nil {
		rec.UserAgent = *ua
	}
	return rec, nil
}

// DeleteByHash removes the single record with the given hash (idempotent).
func (s *PostgresStore) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+` WHERE token_hash = $1
	`, tokenHash)
	return err
}

// DeleteAllForUser removes every record belonging to userID (idempotent).
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+` WHERE user_id = $1
	`, userID)
	return err
}

// CountForUser reports how many records belong to userID.
func (s *PostgresStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM `+s.table()+` WHERE user_id = $1
	`, userID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Sweep purges records whose expiry has passed.
func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table()+` WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func ipText(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// pgIdent joins schema-qualified identifiers that have been validated by
// isValidPGIdent. Never pass unvalidated input.
func pgIdent(schema, name string) string {
	return schema + "." + name
}

func isValidPGIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
