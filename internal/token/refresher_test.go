package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/domain"
)

// fakeProvider is an httptest token endpoint with scripted responses.
type fakeProvider struct {
	t         *testing.T
	server    *httptest.Server
	exchanges int
	respond   func(w http.ResponseWriter, calls int)
}

func newFakeProvider(t *testing.T, respond func(w http.ResponseWriter, calls int)) *fakeProvider {
	p := &fakeProvider{t: t, respond: respond}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		p.exchanges++
		p.respond(w, p.exchanges)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.server.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func grantJSON(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	body := `{"token_type":"Bearer","access_token":"` + access + `","expires_in":21600`
	if refresh != "" {
		body += `,"refresh_token":"` + refresh + `"`
	}
	body += "}"
	_, _ = w.Write([]byte(body))
}

func TestEnsureFreshSkipsExchangeWhenFresh(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {
		grantJSON(w, "unexpected", "")
	})
	now := time.Date(2025, time.November, 2, 12, 0, 0, 0, time.UTC)
	store := NewMemStore()
	r := NewRefresher(store, provider.config(),
		WithClock(func() time.Time { return now }),
		WithRetryWait(time.Millisecond),
	)

	cred := domain.Credential{AccessToken: "valid", RefreshToken: "r", ExpiresAt: now.Add(time.Hour).Unix()}
	got, err := r.EnsureFresh(context.Background(), cred)
	require.NoError(t, err)
	require.Equal(t, cred, got)
	require.Equal(t, 0, provider.exchanges)
}

func TestEnsureFreshRefreshesStaleRecord(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {
		grantJSON(w, "fresh-access", "rotated-refresh")
	})
	now := time.Date(2025, time.November, 2, 12, 0, 0, 0, time.UTC)
	store := NewMemStore()
	r := NewRefresher(store, provider.config(),
		WithClock(func() time.Time { return now }),
		WithRetryWait(time.Millisecond),
	)

	stale := domain.Credential{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: now.Add(-time.Minute).Unix(), IssuedAt: 100}
	got, err := r.EnsureFresh(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, 1, provider.exchanges, "a stale record performs exactly one exchange")
	require.Equal(t, "fresh-access", got.AccessToken)
	require.Equal(t, "rotated-refresh", got.RefreshToken)
	require.Greater(t, got.ExpiresAt, now.Unix())

	// The refreshed record is persisted before EnsureFresh returns.
	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, got, persisted)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {
		grantJSON(w, "fresh-access", "")
	})
	r := NewRefresher(NewMemStore(), provider.config(), WithRetryWait(time.Millisecond))

	got, err := r.Refresh(context.Background(), domain.Credential{RefreshToken: "keep-me", IssuedAt: 1})
	require.NoError(t, err)
	require.Equal(t, "keep-me", got.RefreshToken)
}

func TestRefreshRevokedTokenIsAuthExpired(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	})
	r := NewRefresher(NewMemStore(), provider.config(), WithRetryWait(time.Millisecond))

	_, err := r.Refresh(context.Background(), domain.Credential{RefreshToken: "revoked"})
	require.ErrorIs(t, err, domain.ErrAuthExpired)
	require.Equal(t, 1, provider.exchanges, "revocation is terminal, never retried")
}

func TestRefreshRetriesTransientFailures(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, calls int) {
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		grantJSON(w, "eventually", "")
	})
	r := NewRefresher(NewMemStore(), provider.config(),
		WithMaxRetries(3),
		WithRetryWait(time.Millisecond),
	)

	got, err := r.Refresh(context.Background(), domain.Credential{RefreshToken: "flaky"})
	require.NoError(t, err)
	require.Equal(t, "eventually", got.AccessToken)
	require.Equal(t, 3, provider.exchanges)
}

func TestRefreshTransientFailuresExhaustBudget(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r := NewRefresher(NewMemStore(), provider.config(),
		WithMaxRetries(2),
		WithRetryWait(time.Millisecond),
	)

	_, err := r.Refresh(context.Background(), domain.Credential{RefreshToken: "down"})
	require.ErrorIs(t, err, domain.ErrAuthTransient)
	require.Equal(t, 3, provider.exchanges, "initial attempt plus two retries")
}

func TestRefreshWithoutRefreshTokenIsAuthExpired(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, _ int) {})
	r := NewRefresher(NewMemStore(), provider.config(), WithRetryWait(time.Millisecond))

	_, err := r.Refresh(context.Background(), domain.Credential{})
	require.ErrorIs(t, err, domain.ErrAuthExpired)
	require.Equal(t, 0, provider.exchanges)
}
