// Package middleware exposes HTTP middleware adapters for per-request access
// token validation built on top of tokengate.Engine.
//
// # Guards
//
//   - [Guard] — validates the bearer token on every request.
//   - [RequireRole] — [Guard] plus a role membership check.
//
// Each guard reads the Authorization header, stamps the client IP and
// User-Agent into the request context, calls Engine.Validate, and injects the
// validated result into the request context for downstream handlers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Validate
//     and role membership on the validated result.
package middleware
