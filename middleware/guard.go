package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	tokengate "github.com/mkarimv/tokengate"
)

type authResultContextKey struct{}

// AuthResultFromContext describes the authresultfromcontext operation and its
// observable behavior: it returns the validated authentication result that
// Guard stored in the request context, and false when the request never
// passed through Guard.
func AuthResultFromContext(ctx context.Context) (*tokengate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*tokengate.AuthResult)
	return res, ok
}

// Guard returns middleware that validates the request's bearer token and
// injects the validated result into the request context. The client IP and
// User-Agent are stamped into the context first so device binding and audit
// attribution see the real caller.
func Guard(engine *tokengate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := RequestContext(r)
			res, err := engine.Validate(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestContext returns the request context with the client IP and
// User-Agent attached. Handlers that call the engine directly (login,
// refresh) use this without going through [Guard].
func RequestContext(r *http.Request) context.Context {
	ctx := tokengate.WithClientIP(r.Context(), clientIP(r))
	return tokengate.WithUserAgent(ctx, r.UserAgent())
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
