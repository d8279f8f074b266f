// Package httpapi exposes the account endpoints of a tokengate.Engine as an
// http.Handler.
//
// # Endpoints
//
//	POST /api/account/login           — JSON {"username","password"} → token pair
//	POST /api/account/refreshToken    — JSON {"refreshToken"} → rotated token pair
//	POST /api/account/logout          — JSON {"refreshToken"} → revokes the chain
//	GET  /api/account/isAuthenticated — guarded; reports the caller is valid
//	GET  /api/account/getUserInfo     — guarded; returns the validated identity
//
// Token pairs are returned in the response body; storage strategy (cookie,
// localStorage, sessionStorage) is the caller's concern. See the
// refreshclient package for the client-side rotation scheduler.
package httpapi
