// Package presence maintains the live user -> connection registry and pushes
// full presence snapshots to every connected client on each transition.
//
// The registry is last-wins: a second connection for the same user replaces
// and closes the first. Disconnect only removes an entry when the departing
// handle still owns it, so a stale teardown can never evict a newer
// connection.
package presence
