package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in dev mode and unit tests.
//
// All operations run under one mutex, which trivially satisfies the atomic
// delete-and-return contract of Consume.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Record
	byUser map[string]map[string]struct{} // userID -> set of token hashes
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Create inserts a new record.
func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if rec.UserID == "" || rec.TokenHash == "" {
		return errors.New("memory store: invalid record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[rec.TokenHash]; exists {
		return errors.New("memory store: duplicate token hash")
	}

	s.byHash[rec.TokenHash] = rec
	set := s.byUser[rec.UserID]
	if set == nil {
		set = make(map[string]struct{})
		s.byUser[rec.UserID] = set
	}
	set[rec.TokenHash] = struct{}{}
	return nil
}

// Consume atomically deletes and returns the record matching (userID, tokenHash).
func (s *MemoryStore) Consume(_ context.Context, userID, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok || rec.UserID != userID {
		return Record{}, ErrRecordNotFound
	}

	s.deleteLocked(rec)
	return rec, nil
}

// DeleteByHash removes the record with the given hash if present (idempotent).
func (s *MemoryStore) DeleteByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byHash[tokenHash]; ok {
		s.deleteLocked(rec)
	}
	return nil
}

// DeleteAllForUser removes every record belonging to userID (idempotent).
func (s *MemoryStore) DeleteAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash := range s.byUser[userID] {
		delete(s.byHash, hash)
	}
	delete(s.byUser, userID)
	return nil
}

// CountForUser reports how many records belong to userID.
func (s *MemoryStore) CountForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser[userID]), nil
}

// Sweep purges records whose expiry has passed.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.byHash {
		if !rec.ExpiresAt.After(now) {
			s.deleteLocked(rec)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) deleteLocked(rec Record) {
	delete(s.byHash, rec.TokenHash)
	if set := s.byUser[rec.UserID]; set != nil {
		delete(set, rec.TokenHash)
		if len(set) == 0 {
			delete(s.byUser, rec.UserID)
		}
	}
}
