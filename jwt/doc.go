// Package jwt issues and parses the signed bearer credentials of the token
// lifecycle engine: short-lived access tokens and longer-lived refresh tokens,
// both HS256-signed with the same symmetric key and a fixed claim schema.
//
// # Architecture boundaries
//
// This package owns claim layout, signing, and verification. It knows nothing
// about the ledger, user storage, or Redis; the root engine wires those.
//
// # What this package must NOT do
//
//   - Persist anything. Hashing tokens for storage is the ledger's job.
//   - Make authorization decisions. RefreshSerial returning "" means "no
//     usable serial", not "reject the request".
package jwt
