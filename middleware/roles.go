package middleware

import (
	"net/http"

	tokengate "github.com/mkarimv/tokengate"
)

// RequireRole returns middleware that validates the bearer token like
// [Guard] and additionally requires the validated user to hold the given
// role. Requests holding a valid token without the role get 403, not 401.
func RequireRole(engine *tokengate.Engine, role string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || !hasRole(res.Roles, role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
