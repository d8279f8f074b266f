package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// Sha256Hash returns the base64-encoded SHA-256 digest of input.
//
// Refresh-token serials and raw access tokens are persisted only through this
// function; the ledger never stores either in cleartext.
func Sha256Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewTokenSerial returns a 128-bit cryptographically secure opaque identifier
// used as the per-refresh-token serial claim. uuid.NewRandom reads from
// crypto/rand; the dashes are stripped to keep the claim compact.
func NewTokenSerial() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// NewTokenID returns a unique jti value for a signed token.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// DigestsEqual compares two base64 digests in constant time.
func DigestsEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
