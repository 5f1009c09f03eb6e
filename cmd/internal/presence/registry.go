package presence

import (
	"log/slog"
	"sort"
	"sync"
)

// Event describes one presence transition. Online is the sorted user set
// after the transition; Recipients are the clients connected at that moment.
// Both are computed under the registry lock so every transition produces a
// consistent snapshot.
type Event struct {
	Online     []string
	Recipients []*Client
}

// Subscriber is notified after every connect and disconnect transition.
// Notification happens outside the registry lock; implementations must not
// call back into the registry synchronously in a way that could deadlock
// their own processing.
type Subscriber interface {
	PresenceChanged(ev Event)
}

// Registry owns the in-memory user -> connection mapping.
//
// Concurrency guarantees:
// - Connect/Disconnect are safe under concurrent use.
// - Each user has at most one live entry (last-wins on Connect).
// - Disconnect is handle-matched: a stale handle never evicts a newer one.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Client
	subs    []Subscriber
}

// NewRegistry constructs a Registry instance.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:     log,
		entries: make(map[string]*Client),
	}
}

// Subscribe registers a transition subscriber. Not safe to call concurrently
// with Connect/Disconnect; wire subscribers during startup.
func (r *Registry) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	r.subs = append(r.subs, sub)
}

// Connect registers client as the live connection for its user. If another
// connection for the same user exists it is replaced and closed.
func (r *Registry) Connect(client *Client) {
	if r == nil || client == nil || client.UserID == "" {
		return
	}

	r.mu.Lock()
	replaced := r.entries[client.UserID]
	r.entries[client.UserID] = client
	ev := r.eventLocked()
	r.mu.Unlock()

	// Close the loser after it no longer owns the entry.
	if replaced != nil && replaced != client {
		replaced.Close()
		r.log.Info("presence.replace", "user_id", client.UserID, "old_conn", replaced.ID, "new_conn", client.ID)
	}

	r.log.Info("presence.connect", "user_id", client.UserID, "conn_id", client.ID, "online", len(ev.Online))
	r.notify(ev)
}

// Disconnect removes client from the registry if it still owns its user's
// entry, and signals its shutdown. Returns false when the entry was already
// gone or owned by a newer connection.
func (r *Registry) Disconnect(client *Client) bool {
	if r == nil || client == nil || client.UserID == "" {
		return false
	}

	r.mu.Lock()
	cur := r.entries[client.UserID]
	if cur != client {
		r.mu.Unlock()
		// Still stop the caller's goroutines; it just does not own the entry.
		client.Close()
		return false
	}
	delete(r.entries, client.UserID)
	ev := r.eventLocked()
	r.mu.Unlock()

	client.Close()

	r.log.Info("presence.disconnect", "user_id", client.UserID, "conn_id", client.ID, "online", len(ev.Online))
	r.notify(ev)
	return true
}

// Snapshot returns the sorted set of online user ids.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[userID]
	return c, ok
}

func (r *Registry) onlineLocked() []string {
	online := make([]string, 0, len(r.entries))
	for uid := range r.entries {
		online = append(online, uid)
	}
	sort.Strings(online)
	return online
}

func (r *Registry) eventLocked() Event {
	recipients := make([]*Client, 0, len(r.entries))
	for _, c := range r.entries {
		recipients = append(recipients, c)
	}
	return Event{Online: r.onlineLocked(), Recipients: recipients}
}

func (r *Registry) notify(ev Event) {
	for _, sub := range r.subs {
		sub.PresenceChanged(ev)
	}
}
