package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"bearer abc", "", false},
		{"abc.def.ghi", "", false},
	}

	for _, tc := range cases {
		token, ok := bearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("bearerToken(%q) = (%q, %v), want (%q, %v)",
				tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestClientIP(t *testing.T) {
	newReq := func(remoteAddr, forwarded string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remoteAddr
		if forwarded != "" {
			r.Header.Set("X-Forwarded-For", forwarded)
		}
		return r
	}

	cases := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"remote addr with port", newReq("10.0.0.1:54321", ""), "10.0.0.1"},
		{"remote addr without port", newReq("10.0.0.1", ""), "10.0.0.1"},
		{"forwarded single", newReq("127.0.0.1:1", "203.0.113.7"), "203.0.113.7"},
		{"forwarded chain keeps first hop", newReq("127.0.0.1:1", "203.0.113.7, 10.0.0.1, 10.0.0.2"), "203.0.113.7"},
		{"forwarded with spaces", newReq("127.0.0.1:1", "  203.0.113.7  "), "203.0.113.7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clientIP(tc.req); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGuardWithoutEngineRefuses(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthResultFromContextMissing(t *testing.T) {
	if _, ok := AuthResultFromContext(context.Background()); ok {
		t.Fatal("expected no auth result in fresh context")
	}
}
