package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/observability"
)

// Refresher exchanges refresh tokens for fresh access tokens and persists the
// rotated record before handing it back.
type Refresher struct {
	store      Store
	oauth      *oauth2.Config
	httpClient *http.Client
	skew       time.Duration
	maxRetries uint64
	retryWait  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// RefresherOption configures optional behaviour for the Refresher.
type RefresherOption func(*Refresher)

// WithSkew overrides the staleness safety margin.
func WithSkew(skew time.Duration) RefresherOption {
	return func(r *Refresher) { r.skew = skew }
}

// WithMaxRetries bounds retries of transient refresh failures.
func WithMaxRetries(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.maxRetries = uint64(n)
		}
	}
}

// WithRetryWait overrides the initial backoff interval between retries.
func WithRetryWait(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.retryWait = d }
}

// WithHTTPClient overrides the HTTP client used for the token exchange.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *Refresher) { r.httpClient = client }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher constructs a Refresher persisting through store and exchanging
// against the token endpoint in oauthCfg.
func NewRefresher(store Store, oauthCfg *oauth2.Config, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:      store,
		oauth:      oauthCfg,
		skew:       domain.DefaultTokenSkew,
		maxRetries: 3,
		retryWait:  500 * time.Millisecond,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureFresh returns cred unchanged when it is still usable, otherwise
// performs exactly one refresh-token exchange (plus bounded retries of
// transient failures) and persists the result before returning it.
func (r *Refresher) EnsureFresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	if !cred.Stale(r.now(), r.skew) {
		return cred, nil
	}
	r.logger.Info("access token stale, refreshing",
		zap.Int64("expires_at", cred.ExpiresAt),
		zap.Duration("skew", r.skew))
	return r.Refresh(ctx, cred)
}

// Refresh performs the refresh-token grant unconditionally. ErrAuthExpired is
// terminal and never retried; transient failures are retried with exponential
// backoff up to the configured budget.
func (r *Refresher) Refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	if cred.RefreshToken == "" {
		return domain.Credential{}, fmt.Errorf("credential has no refresh token: %w", domain.ErrAuthExpired)
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	var tok *oauth2.Token
	operation := func() error {
		var err error
		tok, err = r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err == nil {
			return nil
		}
		classified := classifyRefreshError(err)
		if errors.Is(classified, domain.ErrAuthExpired) {
			return backoff.Permanent(classified)
		}
		r.logger.Warn("token refresh attempt failed", zap.Error(classified))
		return classified
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryWait
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)); err != nil {
		return domain.Credential{}, err
	}

	refreshed := cred
	refreshed.AccessToken = tok.AccessToken
	if !tok.Expiry.IsZero() {
		refreshed.ExpiresAt = tok.Expiry.Unix()
	}
	// Providers may rotate the refresh token; keep the old one otherwise.
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}

	if err := r.store.Save(ctx, refreshed); err != nil {
		return domain.Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}
	observability.RecordTokenRefresh()
	r.logger.Info("access token refreshed", zap.Int64("expires_at", refreshed.ExpiresAt))
	return refreshed, nil
}

// classifyRefreshError maps provider responses onto the error taxonomy.
// Revocation-style responses require a fresh consent flow; anything else is
// eligible for retry.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode == "invalid_grant" || status == http.StatusBadRequest ||
			status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("refresh rejected (status=%d, code=%s): %w", status, retrieveErr.ErrorCode, domain.ErrAuthExpired)
		}
		return fmt.Errorf("refresh failed (status=%d): %w", status, domain.ErrAuthTransient)
	}
	return fmt.Errorf("refresh request: %v: %w", err, domain.ErrAuthTransient)
}
