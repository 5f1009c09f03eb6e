// Package password provides password hashing and verification primitives.
//
// The identity collaborator that fronts beacon's login endpoint is expected to
// store hashes in the format produced here. The package implements Argon2id
// with a PHC-like encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password length policy validation
// - Strict hash decoding and verification with anti-DoS bounds
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
package password
