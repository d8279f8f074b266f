// Package ledger persists the server-side record of every issued token pair.
//
// Each entry is keyed by the SHA-256 hash of its refresh-token serial and
// carries the hash of the paired access token, so that bearer validation can
// confirm an access token was actually minted by this server and has not been
// revoked. Entries form chains: a token minted during refresh records the
// hash of the serial it replaced as its source, which lets a whole chain be
// revoked at once when a spent serial is replayed.
package ledger

import "time"

// Entry defines a public type used by tokengate APIs. It records one issued
// token pair. All hashes are base64-encoded SHA-256 digests; the raw serial
// never touches Redis.
type Entry struct {
	UserID           int64
	AccessTokenHash  string
	SourceHash       string
	CreatedAt        int64
	AccessExpiresAt  int64
	RefreshExpiresAt int64
}

// Expired reports whether the refresh window of the entry has closed.
func (e *Entry) Expired(now time.Time) bool {
	return e.RefreshExpiresAt <= now.Unix()
}
