package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func testRecord(id, userID, hash string, now time.Time) Record {
	return Record{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		IP:        net.ParseIP("203.0.113.7"),
		UserAgent: "test-agent",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestMemoryStoreConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	if err := st.Create(ctx, testRecord("r1", "u1", "h1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := st.Consume(ctx, "u1", "h1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if rec.ID != "r1" || rec.UserID != "u1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// Second consume of the same value must fail.
	if _, err := st.Consume(ctx, "u1", "h1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("second Consume: err = %v, want ErrRecordNotFound", err)
	}
}

func TestMemoryStoreConsumeWrongUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	if err := st.Create(ctx, testRecord("r1", "u1", "h1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := st.Consume(ctx, "u2", "h1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}

	// The record must survive an attempt by the wrong user.
	if n, _ := st.CountForUser(ctx, "u1"); n != 1 {
		t.Fatalf("CountForUser = %d, want 1", n)
	}
}

func TestMemoryStoreConsumeIsAtMostOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	if err := st.Create(ctx, testRecord("r1", "u1", "h1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Consume(ctx, "u1", "h1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestMemoryStoreDeleteByHashIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	if err := st.Create(ctx, testRecord("r1", "u1", "h1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := st.DeleteByHash(ctx, "h1"); err != nil {
		t.Fatalf("DeleteByHash: %v", err)
	}
	if err := st.DeleteByHash(ctx, "h1"); err != nil {
		t.Fatalf("repeated DeleteByHash: %v", err)
	}
	if err := st.DeleteByHash(ctx, "never-existed"); err != nil {
		t.Fatalf("DeleteByHash unknown: %v", err)
	}
}

func TestMemoryStoreDeleteAllForUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	for _, r := range []Record{
		testRecord("r1", "u1", "h1", now),
		testRecord("r2", "u1", "h2", now),
		testRecord("r3", "u2", "h3", now),
	} {
		if err := st.Create(ctx, r); err != nil {
			t.Fatalf("Create %s: %v", r.ID, err)
		}
	}

	if err := st.DeleteAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}

	if n, _ := st.CountForUser(ctx, "u1"); n != 0 {
		t.Fatalf("u1 count = %d, want 0", n)
	}
	if n, _ := st.CountForUser(ctx, "u2"); n != 1 {
		t.Fatalf("u2 count = %d, want 1", n)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	fresh := testRecord("r1", "u1", "h1", now)
	stale := testRecord("r2", "u1", "h2", now)
	stale.ExpiresAt = now.Add(-time.Minute)

	if err := st.Create(ctx, fresh); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create(ctx, stale); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := st.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if left, _ := st.CountForUser(ctx, "u1"); left != 1 {
		t.Fatalf("remaining = %d, want 1", left)
	}
}
