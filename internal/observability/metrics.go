// Package observability exposes Prometheus metrics for pipeline runs.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	activitiesFetchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "fetch",
		Name:      "activities_total",
		Help:      "Number of activities fetched from the remote API.",
	})
	critiquesGeneratedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "generate",
		Name:      "critiques_total",
		Help:      "Number of critiques generated.",
	})
	generationFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "generate",
		Name:      "failures_total",
		Help:      "Number of per-activity generation failures.",
	})
	uploadCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "upload",
		Name:      "attempts_total",
		Help:      "Number of upload attempts by outcome.",
	}, []string{"outcome"})
	tokenRefreshCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "token",
		Name:      "refresh_total",
		Help:      "Number of successful refresh-token exchanges.",
	})
	rateLimitRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strava_critic",
		Subsystem: "remote",
		Name:      "rate_limit_retries_total",
		Help:      "Number of backoff retries triggered by HTTP 429 responses.",
	})
)

func init() {
	prometheus.MustRegister(
		activitiesFetchedCounter,
		critiquesGeneratedCounter,
		generationFailureCounter,
		uploadCounter,
		tokenRefreshCounter,
		rateLimitRetryCounter,
	)
}

// RecordActivitiesFetched adds n to the fetch counter.
func RecordActivitiesFetched(n int) {
	if n > 0 {
		activitiesFetchedCounter.Add(float64(n))
	}
}

// RecordCritiqueGenerated increments the generation counter.
func RecordCritiqueGenerated() { critiquesGeneratedCounter.Inc() }

// RecordGenerationFailure increments the per-activity failure counter.
func RecordGenerationFailure() { generationFailureCounter.Inc() }

// RecordUpload increments the upload counter for the given outcome
// (succeeded, failed, skipped, dry_run).
func RecordUpload(outcome string) { uploadCounter.WithLabelValues(outcome).Inc() }

// RecordTokenRefresh increments the refresh counter.
func RecordTokenRefresh() { tokenRefreshCounter.Inc() }

// RecordRateLimitRetry increments the 429 retry counter.
func RecordRateLimitRetry() { rateLimitRetryCounter.Inc() }
