package tokengate

import "errors"

var (
	// ErrUnauthorized is an exported constant or variable used by the token engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the token engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the token engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is an exported constant or variable used by the token engine.
	ErrUserInactive = errors.New("user inactive")
	// ErrLoginRateLimited is an exported constant or variable used by the token engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is an exported constant or variable used by the token engine.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrRefreshInvalid is an exported constant or variable used by the token engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshNotFound is returned when a refresh serial has no ledger entry.
	// A lost rotation race surfaces the same way: the winner consumed the
	// entry, so the loser cannot distinguish contention from revocation.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshReuse is an exported constant or variable used by the token engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrDeviceMismatch is an exported constant or variable used by the token engine.
	ErrDeviceMismatch = errors.New("device fingerprint mismatch")
	// ErrSerialInvalid is an exported constant or variable used by the token engine.
	ErrSerialInvalid = errors.New("token serial number invalid")
	// ErrTokenInvalid is an exported constant or variable used by the token engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is an exported constant or variable used by the token engine.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrEngineNotReady is an exported constant or variable used by the token engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrLedgerUnavailable is an exported constant or variable used by the token engine.
	ErrLedgerUnavailable = errors.New("token ledger unavailable")
)
