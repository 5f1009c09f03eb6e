package presence

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryConnectAndSnapshot(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())

	r.Connect(NewClient("c1", "zoe", 8))
	r.Connect(NewClient("c2", "amir", 8))

	if got := r.Snapshot(); !reflect.DeepEqual(got, []string{"amir", "zoe"}) {
		t.Fatalf("Snapshot = %v, want sorted [amir zoe]", got)
	}
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
}

func TestRegistryLastWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())

	old := NewClient("c1", "u1", 8)
	r.Connect(old)

	replacement := NewClient("c2", "u1", 8)
	r.Connect(replacement)

	// The replaced connection is signalled to stop.
	select {
	case <-old.Done():
	default:
		t.Fatal("replaced client was not closed")
	}

	cur, ok := r.Lookup("u1")
	if !ok || cur != replacement {
		t.Fatal("registry does not hold the replacement connection")
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryDisconnectIsHandleMatched(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())

	old := NewClient("c1", "u1", 8)
	r.Connect(old)
	replacement := NewClient("c2", "u1", 8)
	r.Connect(replacement)

	// The stale handle's teardown must not evict the newer connection.
	if r.Disconnect(old) {
		t.Fatal("Disconnect reported removal for a stale handle")
	}
	if _, ok := r.Lookup("u1"); !ok {
		t.Fatal("replacement evicted by stale disconnect")
	}

	if !r.Disconnect(replacement) {
		t.Fatal("Disconnect failed for the owning handle")
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("entry still present after owning disconnect")
	}
	select {
	case <-replacement.Done():
	default:
		t.Fatal("disconnected client was not closed")
	}
}

type recordingSub struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSub) PresenceChanged(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSub) snapshots() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Online)
	}
	return out
}

func TestRegistryNotifiesOnEveryTransition(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())
	sub := &recordingSub{}
	r.Subscribe(sub)

	a := NewClient("c1", "a", 8)
	b := NewClient("c2", "b", 8)

	r.Connect(a)
	r.Connect(b)
	r.Disconnect(a)

	want := [][]string{
		{"a"},
		{"a", "b"},
		{"b"},
	}
	if got := sub.snapshots(); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshots = %v, want %v", got, want)
	}
}

func TestRegistryConcurrentConnectDisconnect(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())

	const users = 8
	const rounds = 25

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uid := string(rune('a' + n))
			for j := 0; j < rounds; j++ {
				c := NewClient(NewConnectionID(), uid, 8)
				r.Connect(c)
				r.Disconnect(c)
			}
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Fatalf("Count = %d, want 0 after all disconnects", r.Count())
	}
}
