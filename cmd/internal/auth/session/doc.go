// Package session implements beacon's credential rotation protocol.
//
// It issues short-lived signed access credentials and longer-lived renewable
// credentials, rotates renewable credentials with at-most-once redemption,
// and detects likely credential theft via device-fingerprint comparison.
//
// Both credential kinds are PASETO v4.public values signed with a single
// process-wide Ed25519 key. Renewable values are additionally persisted
// (hashed, never in plaintext) so that each value can be redeemed exactly once.
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
