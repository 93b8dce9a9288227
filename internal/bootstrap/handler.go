// Package bootstrap implements the one-time consent flow that seeds the
// first credential record: a local web app redirecting to the provider's
// authorize page and exchanging the returned code for tokens.
package bootstrap

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/token"
)

// Handler serves the consent-flow routes: / (status), /login (redirect to
// the authorize URL) and /callback (code exchange + credential persistence).
type Handler struct {
	oauth        *oauth2.Config
	store        token.Store
	defaultScope string
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.Mutex
	states map[string]struct{}
}

// NewHandler constructs a Handler persisting credentials through store.
func NewHandler(oauthCfg *oauth2.Config, store token.Store, defaultScope string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultScope == "" {
		defaultScope = "activity:read"
	}
	return &Handler{
		oauth:        oauthCfg,
		store:        store,
		defaultScope: defaultScope,
		logger:       logger,
		now:          time.Now,
		states:       make(map[string]struct{}),
	}
}

// Register attaches the consent routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.status)
	mux.HandleFunc("GET /login", h.login)
	mux.HandleFunc("GET /callback", h.callback)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	body := map[string]any{
		"logged_in": len(creds) > 0,
		"login_url": "/login",
		"tokens":    len(creds),
	}
	if len(creds) > 0 {
		body["athlete_id"] = creds[0].AthleteID
		body["expires_at"] = creds[0].ExpiresAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = h.defaultScope
	}

	state, err := newState()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create state"})
		return
	}
	h.mu.Lock()
	h.states[state] = struct{}{}
	h.mu.Unlock()

	authURL := h.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
		oauth2.SetAuthURLParam("scope", scope),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("authorization denied: %s", errParam)})
		return
	}
	if !h.consumeState(query.Get("state")) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown or reused state"})
		return
	}
	code := query.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing authorization code"})
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("code exchange failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "token exchange failed"})
		return
	}

	cred := domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     h.now().Unix(),
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry.Unix()
	}
	if grantedScope := query.Get("scope"); grantedScope != "" {
		cred.Scopes = strings.Split(grantedScope, ",")
	}
	athlete := athleteSummary(tok)
	cred.AthleteID = athlete.ID

	if err := h.store.Save(r.Context(), cred); err != nil {
		h.logger.Error("persist credential failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist credential"})
		return
	}

	h.logger.Info("credential stored",
		zap.Int64("athlete_id", cred.AthleteID),
		zap.Int64("expires_at", cred.ExpiresAt))
	writeJSON(w, http.StatusOK, map[string]any{
		"logged_in":  true,
		"athlete":    athlete,
		"expires_at": cred.ExpiresAt,
	})
}

func (h *Handler) consumeState(state string) bool {
	if state == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.states[state]; !ok {
		return false
	}
	delete(h.states, state)
	return true
}

// Athlete is the provider profile summary returned alongside the token.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// athleteSummary pulls the athlete object Strava embeds in its token
// response.
func athleteSummary(tok *oauth2.Token) Athlete {
	var athlete Athlete
	extra := tok.Extra("athlete")
	if extra == nil {
		return athlete
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return athlete
	}
	_ = json.Unmarshal(raw, &athlete)
	return athlete
}

func newState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
