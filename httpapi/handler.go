package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	tokengate "github.com/mkarimv/tokengate"
	"github.com/mkarimv/tokengate/middleware"
)

// Handler defines a public type used by httpapi APIs.
//
// Handler instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Handler struct {
	engine *tokengate.Engine
	mux    *http.ServeMux
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
func New(engine *tokengate.Engine) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}

	h := &Handler{engine: engine, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /api/account/login", h.login)
	h.mux.HandleFunc("POST /api/account/refreshToken", h.refreshToken)
	h.mux.HandleFunc("POST /api/account/logout", h.logout)

	guard := middleware.Guard(engine)
	h.mux.Handle("GET /api/account/isAuthenticated", guard(http.HandlerFunc(h.isAuthenticated)))
	h.mux.Handle("GET /api/account/getUserInfo", guard(http.HandlerFunc(h.getUserInfo)))

	return h, nil
}

// ServeHTTP describes the servehttp operation and its observable behavior.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pair, err := h.engine.Login(middleware.RequestContext(r), body.Username, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeTokenPair(w, pair)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	pair, err := h.engine.Refresh(middleware.RequestContext(r), body.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeTokenPair(w, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.engine.Logout(middleware.RequestContext(r), body.RefreshToken); err != nil {
		// Logging out a token that is already dead still ends the session
		// on the caller's side.
		if !errors.Is(err, tokengate.ErrRefreshInvalid) {
			writeError(w, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) isAuthenticated(w http.ResponseWriter, r *http.Request) {
	_, ok := middleware.AuthResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"isAuthenticated": ok})
}

func (h *Handler) getUserInfo(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      res.UserID,
		"username":    res.Username,
		"displayName": res.DisplayName,
		"roles":       res.Roles,
	})
}

func writeTokenPair(w http.ResponseWriter, pair *tokengate.TokenPair) {
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt.Unix(),
		RefreshExpiresAt: pair.RefreshExpiresAt.Unix(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tokengate.ErrLoginRateLimited),
		errors.Is(err, tokengate.ErrRefreshRateLimited):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, tokengate.ErrLedgerUnavailable):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
