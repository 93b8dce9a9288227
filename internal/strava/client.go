// Package strava is the HTTP client for the Strava REST API.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/observability"
)

// DefaultBaseURL is the production Strava API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// Endpoint is Strava's OAuth2 endpoint pair, shared by the refresher and the
// bootstrap consent flow.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.strava.com/oauth/authorize",
	TokenURL: "https://www.strava.com/oauth/token",
}

// RawActivity is one undecoded activity object as returned by the API.
type RawActivity = map[string]json.RawMessage

// Client calls the activities endpoints with bearer authentication, a shared
// client-side rate limiter, and bounded backoff on throttling responses.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts uint64
	retryWait   time.Duration
	logger      *zap.Logger
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithBaseURL overrides the API root, for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithRateLimit sets the client-side request rate in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxAttempts bounds attempts per request, including the first one.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = uint64(n)
		}
	}
}

// WithRetryWait overrides the initial backoff interval, for tests.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient constructs a Client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		maxAttempts: 4,
		retryWait:   time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListActivities fetches one page of the athlete's activities, most recent
// first. Authorization errors surface domain.ErrAuthExpired without retrying;
// the orchestrator owns refresh-and-restart.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]RawActivity, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	body, err := c.do(ctx, http.MethodGet, "/athlete/activities?"+query.Encode(), accessToken, nil)
	if err != nil {
		return nil, err
	}

	var activities []RawActivity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("decode activities page %d: %w", page, err)
	}
	return activities, nil
}

// UpdateDescription sets the description of one activity and returns the
// description the API stored.
func (c *Client) UpdateDescription(ctx context.Context, accessToken string, activityID int64, text string) (string, error) {
	form := url.Values{}
	form.Set("description", text)

	body, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/activities/%d", activityID), accessToken, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}

	var updated struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		return "", fmt.Errorf("decode activity %d update response: %w", activityID, err)
	}
	return updated.Description, nil
}

// do issues one API call with rate limiting and bounded backoff. Throttling
// and server errors are retried with exponential backoff and jitter; auth and
// validation failures are permanent.
func (c *Client) do(ctx context.Context, method, path, accessToken string, formBody *strings.Reader) ([]byte, error) {
	var payload []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var bodyReader io.Reader
		if formBody != nil {
			if _, err := formBody.Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(err)
			}
			bodyReader = formBody
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		if formBody != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("request failed", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrNetwork)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %v: %w", err, domain.ErrNetwork)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%s %s: status=%d: %s: %w", method, path, resp.StatusCode, errorDetail(body), domain.ErrAuthExpired))
		case resp.StatusCode == http.StatusTooManyRequests:
			observability.RecordRateLimitRetry()
			c.logger.Warn("rate limited by remote API", zap.String("path", path))
			return fmt.Errorf("%s %s: status=429: %w", method, path, domain.ErrRateLimited)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%s %s: status=%d: %w", method, path, resp.StatusCode, domain.ErrNetwork)
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("%s %s: status=%d: %s: %w", method, path, resp.StatusCode, errorDetail(body), domain.ErrRemoteValidation))
		}

		payload = body
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxAttempts-1), ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

// errorDetail extracts the message/errors pair Strava returns on failures.
func errorDetail(body []byte) string {
	var detail struct {
		Message string            `json:"message"`
		Errors  []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &detail); err != nil || detail.Message == "" {
		trimmed := strings.TrimSpace(string(body))
		if trimmed == "" {
			return "<empty body>"
		}
		return trimmed
	}
	if len(detail.Errors) > 0 {
		parts := make([]string, 0, len(detail.Errors))
		for _, raw := range detail.Errors {
			parts = append(parts, string(raw))
		}
		return fmt.Sprintf("%s | errors=%s", detail.Message, strings.Join(parts, ","))
	}
	return detail.Message
}
