package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/token"
)

func testCredential() domain.Credential {
	return domain.Credential{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    1762084800,
		AthleteID:    777,
		IssuedAt:     1762063200,
	}
}

func newTestHandler(t *testing.T, tokenURL string) (*Handler, *token.MemStore, *http.ServeMux) {
	t.Helper()
	store := token.NewMemStore()
	cfg := &oauth2.Config{
		ClientID:     "12345",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://example.test/oauth/authorize",
			TokenURL: tokenURL,
		},
	}
	h := NewHandler(cfg, store, "activity:read_all,activity:write", nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return h, store, mux
}

func TestLoginRedirectsToAuthorizeURL(t *testing.T) {
	_, _, mux := newTestHandler(t, "https://example.test/oauth/token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "example.test", loc.Host)
	query := loc.Query()
	require.Equal(t, "12345", query.Get("client_id"))
	require.Equal(t, "activity:read_all,activity:write", query.Get("scope"))
	require.Equal(t, "auto", query.Get("approval_prompt"))
	require.NotEmpty(t, query.Get("state"))
}

func TestCallbackExchangesCodeAndPersists(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"token_type": "Bearer",
			"access_token": "granted-access",
			"refresh_token": "granted-refresh",
			"expires_in": 21600,
			"athlete": {"id": 777, "username": "runner"}
		}`))
	}))
	defer provider.Close()

	_, store, mux := newTestHandler(t, provider.URL+"/oauth/token")

	// Login first so a state exists to consume.
	loginRec := httptest.NewRecorder()
	mux.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))
	loc, err := url.Parse(loginRec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")

	callback := "/callback?code=the-code&state=" + state + "&scope=activity:read_all,activity:write"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callback, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cred, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "granted-access", cred.AccessToken)
	require.Equal(t, "granted-refresh", cred.RefreshToken)
	require.Equal(t, int64(777), cred.AthleteID)
	require.Equal(t, []string{"activity:read_all", "activity:write"}, cred.Scopes)
	require.NotZero(t, cred.ExpiresAt)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["logged_in"])
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	_, _, mux := newTestHandler(t, "https://example.test/oauth/token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=x&state=never-issued", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"a","refresh_token":"r","expires_in":21600}`))
	}))
	defer provider.Close()

	_, _, mux := newTestHandler(t, provider.URL+"/oauth/token")

	loginRec := httptest.NewRecorder()
	mux.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/login", nil))
	loc, _ := url.Parse(loginRec.Header().Get("Location"))
	state := loc.Query().Get("state")

	first := httptest.NewRecorder()
	mux.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?code=c&state="+state, nil))
	require.Equal(t, http.StatusOK, first.Code)

	replay := httptest.NewRecorder()
	mux.ServeHTTP(replay, httptest.NewRequest(http.MethodGet, "/callback?code=c&state="+state, nil))
	require.Equal(t, http.StatusBadRequest, replay.Code)
}

func TestCallbackSurfacesProviderDenial(t *testing.T) {
	_, _, mux := newTestHandler(t, "https://example.test/oauth/token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "access_denied")
}

func TestStatusReportsStoredCredential(t *testing.T) {
	_, store, mux := newTestHandler(t, "https://example.test/oauth/token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["logged_in"])

	require.NoError(t, store.Save(context.Background(), testCredential()))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["logged_in"])
	require.Equal(t, float64(777), body["athlete_id"])
}
