// Package tokengate implements a JWT access/refresh token lifecycle engine
// backed by Redis.
//
// # Components
//
//   - [Engine] — issues token pairs on login, rotates refresh tokens with
//     single-use semantics and replay detection, validates bearer tokens
//     against the server-side ledger, and revokes tokens on logout.
//   - [Builder] — fluent construction with fail-fast configuration checks.
//   - [UserProvider] — the interface callers implement to plug in their user
//     database.
//
// # Token model
//
// Every login mints an access token and a refresh token. The refresh token
// carries a random serial; the SHA-256 hash of that serial keys a ledger
// entry in Redis recording the paired access-token hash and the chain source.
// A refresh consumes its serial atomically: exactly one concurrent caller
// wins, and a replayed spent serial revokes the whole chain that grew from
// it. Rotating a user's stored serial number invalidates every outstanding
// access token at validation time without touching Redis.
//
// # Architecture boundaries
//
// This package owns lifecycle policy. Signing lives in jwt, persistence in
// ledger, fingerprinting in device, and credential hashing in password.
package tokengate
