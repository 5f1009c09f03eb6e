// Package token provides hashing primitives for renewable-credential values.
//
// It is the single source of truth for how refresh values are hashed before
// they are written to the session store.
//
// Design goals:
// - Default dev/back-compat mode: SHA-256(value) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(value, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - BEACON_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
