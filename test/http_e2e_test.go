//go:build integration
// +build integration

package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkarimv/tokengate/httpapi"
)

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func newAPIServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	engine, _, cleanup := newTestEngine(t, nil)
	api, err := httpapi.New(engine)
	if err != nil {
		t.Fatalf("httpapi build failed: %v", err)
	}

	srv := httptest.NewServer(api)
	return srv, func() {
		srv.Close()
		cleanup()
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func doAuthorized(t *testing.T, url, accessToken string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", testUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestAccountEndpointsEndToEnd(t *testing.T) {
	srv, cleanup := newAPIServer(t)
	defer cleanup()

	// Login.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/account/login", map[string]string{
		"username": "vahid",
		"password": testPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var pair tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	resp.Body.Close()
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair in login response")
	}

	// Guarded endpoints accept the access token.
	resp = doAuthorized(t, srv.URL+"/api/account/isAuthenticated", pair.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("isAuthenticated: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAuthorized(t, srv.URL+"/api/account/getUserInfo", pair.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("getUserInfo: expected 200, got %d", resp.StatusCode)
	}
	var info struct {
		UserID      int64    `json:"userId"`
		Username    string   `json:"username"`
		DisplayName string   `json:"displayName"`
		Roles       []string `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode user info: %v", err)
	}
	resp.Body.Close()
	if info.Username != "vahid" || len(info.Roles) != 2 {
		t.Fatalf("unexpected user info: %+v", info)
	}

	// Refresh rotates the pair.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/account/refreshToken", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var rotated tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	resp.Body.Close()
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}

	// The retired access token stops working; the new one works.
	resp = doAuthorized(t, srv.URL+"/api/account/isAuthenticated", pair.AccessToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("retired token: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = doAuthorized(t, srv.URL+"/api/account/isAuthenticated", rotated.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated token: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Logout kills the chain.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/account/logout", map[string]string{
		"refreshToken": rotated.RefreshToken,
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAuthorized(t, srv.URL+"/api/account/isAuthenticated", rotated.AccessToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshReuseOverHTTP(t *testing.T) {
	srv, cleanup := newAPIServer(t)
	defer cleanup()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/account/login", map[string]string{
		"username": "vahid",
		"password": testPassword,
	})
	var pair tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/account/refreshToken", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var rotated tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	resp.Body.Close()

	// Replaying the spent token is rejected and burns the chain.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/account/refreshToken", map[string]string{
		"refreshToken": pair.RefreshToken,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doAuthorized(t, srv.URL+"/api/account/isAuthenticated", rotated.AccessToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after replay: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginBadRequestAndUnauthorized(t *testing.T) {
	srv, cleanup := newAPIServer(t)
	defer cleanup()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/account/login", map[string]string{
		"username": "vahid",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/account/login", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
