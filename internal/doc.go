// Package internal contains helper utilities that are intentionally private
// to tokengate, including token serial generation and digest helpers.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed fixed-window rate limit primitives
//   - security — configuration-derived security posture reports
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokengate API.
//   - Be imported by any package outside the tokengate module.
package internal
