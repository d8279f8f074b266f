// Package refreshclient implements a proactive refresh scheduler for clients
// holding a tokengate token pair.
//
// A scheduler times the next refresh call a safety margin before the access
// token expires, so requests never carry an expired token. When several
// instances of a client run against the same token storage (browser tabs
// sharing localStorage, worker replicas sharing a file), a shared lock record
// keyed by user ID elects a single owner: only the owner fires refresh calls,
// the rest defer and read the rotated pair from storage. Refresh tokens are
// single-use, so two concurrent refreshers would burn each other's chains.
//
// # Components
//
//   - [TokenStore] — persists the current pair; [StorageScope] selects
//     shared (persistent) or instance-local storage.
//   - [LockStore] — the ownership record other instances observe.
//   - [Scheduler] — the timer loop; [Scheduler.Stop] releases ownership on
//     shutdown, [Scheduler.Clear] tears everything down on logout.
package refreshclient
