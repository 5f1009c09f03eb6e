package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey names the env var carrying the HMAC secret for stored hashes.
// #nosec G101 -- this is the variable name, not a secret.
const HMACEnvKey = "BEACON_TOKEN_HMAC_KEY"

func keyFromEnv() string {
	return strings.TrimSpace(os.Getenv(HMACEnvKey))
}

// HMACEnabled reports whether an HMAC key is configured. It does not check
// the key length; HMACKeyFromEnv does that.
func HMACEnabled() bool {
	return keyFromEnv() != ""
}

// HMACKeyFromEnv returns the configured key bytes, enforcing minBytes.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := keyFromEnv()
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return []byte(raw), nil
}

// HashSHA256Hex digests s with plain SHA-256. Dev fallback only.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex digests s with HMAC-SHA256 under key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HashRefreshTokenHex produces the storage digest for a renewable value:
// HMAC-SHA256 when a key is configured, plain SHA-256 otherwise. Output is
// always 64 hex chars.
func HashRefreshTokenHex(value string) string {
	if key := keyFromEnv(); key != "" {
		return HashHMACSHA256Hex(value, []byte(key))
	}
	return HashSHA256Hex(value)
}

// HashRefreshTokenHexRequireHMAC is the enforced-policy variant: a missing
// or short key is an error, never a SHA fallback.
func HashRefreshTokenHexRequireHMAC(value string, minBytes int) (string, error) {
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		return "", err
	}
	return HashHMACSHA256Hex(value, key), nil
}
