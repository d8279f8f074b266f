// Package rate provides internal primitives used to build Redis-backed rate limit keys,
// errors, and limiter behavior for security-sensitive token workflows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - tl:  — login per-username
//   - tli: — login per-IP
//   - tr:  — refresh per-serial-hash
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (that belongs to the engine).
//   - Be imported outside the tokengate module.
package rate
