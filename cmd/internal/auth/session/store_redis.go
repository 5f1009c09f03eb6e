package session

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis.
//
// Layout:
//
//	<prefix>:rec:<tokenHash>   HASH   record fields, EXPIREAT expires_at
//	<prefix>:user:<userID>     SET    token hashes for the user
//
// Consume runs a Lua script so the owner check, the read and the delete
// happen as one atomic step.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// consumeScript deletes and returns the record at KEYS[1] only if its
// user_id field equals ARGV[1], and removes the hash from the user set
// KEYS[2].
var consumeScript = redis.NewScript(`
local owner = redis.call("HGET", KEYS[1], "user_id")
if not owner or owner ~= ARGV[1] then
	return nil
end
local rec = redis.call("HGETALL", KEYS[1])
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[2])
return rec
`)

// NewRedisStore creates a Redis-backed session store. The key prefix
// defaults to "beacon:sess" when empty.
func NewRedisStore(rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("session: nil redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "beacon:sess"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

// Close closes the store. The client is owned by the caller; this is a no-op.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) recKey(tokenHash string) string {
	return s.prefix + ":rec:" + tokenHash
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Create stores a new record with a TTL at its expiry.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	key := s.recKey(rec.TokenHash)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"token_hash": rec.TokenHash,
		"ip":         ipString(rec.IP),
		"user_agent": rec.UserAgent,
		"created_at": rec.CreatedAt.UnixMilli(),
		"expires_at": rec.ExpiresAt.UnixMilli(),
	})
	pipe.ExpireAt(ctx, key, rec.ExpiresAt)
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.TokenHash)
	_, err := pipe.Exec(ctx)
	return err
}

// Consume atomically deletes and returns the record matching
// (userID, tokenHash).
func (s *RedisStore) Consume(ctx context.Context, userID, tokenHash string) (Record, error) {
	res, err := consumeScript.Run(ctx, s.rdb,
		[]string{s.recKey(tokenHash), s.userKey(userID)},
		userID, tokenHash,
	).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	fields, ok := res.([]any)
	if !ok || len(fields) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return recordFromFields(fields)
}

// DeleteByHash removes the record with the given hash (idempotent).
func (s *RedisStore) DeleteByHash(ctx context.Context, tokenHash string) error {
	key := s.recKey(tokenHash)

	userID, err := s.rdb.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.userKey(userID), tokenHash)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteAllForUser removes every record belonging to userID (idempotent).
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) error {
	hashes, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, h := range hashes {
		pipe.Del(ctx, s.recKey(h))
	}
	pipe.Del(ctx, s.userKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

// CountForUser reports how many live records belong to userID. Entries
// whose record key already expired are pruned from the index as a side
// effect.
func (s *RedisStore) CountForUser(ctx context.Context, userID string) (int, error) {
	hashes, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, h := range hashes {
		exists, err := s.rdb.Exists(ctx, s.recKey(h)).Result()
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			n++
			continue
		}
		if err := s.rdb.SRem(ctx, s.userKey(userID), h).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Sweep is a no-op for Redis; record keys expire on their own. It exists
// to satisfy Store.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func recordFromFields(fields []any) (Record, error) {
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		k, _ := fields[i].(string)
		v, _ := fields[i+1].(string)
		m[k] = v
	}

	rec := Record{
		ID:        m["id"],
		UserID:    m["user_id"],
		TokenHash: m["token_hash"],
		UserAgent: m["user_agent"],
	}
	if m["ip"] != "" {
		rec.IP = net.ParseIP(m["ip"])
	}

	createdMs, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return Record{}, errors.New("session: malformed created_at in redis record")
	}
	expiresMs, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return Record{}, errors.New("session: malformed expires_at in redis record")
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	return rec, nil
}
