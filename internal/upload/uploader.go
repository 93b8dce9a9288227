// Package upload writes pending critiques back to the remote API as activity
// descriptions and flips the ledger status for each success.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/ledger"
	"github.com/zjywill/StravaCritiques/internal/observability"
)

// API is the slice of the Strava client the uploader needs.
type API interface {
	UpdateDescription(ctx context.Context, accessToken string, activityID int64, text string) (string, error)
}

// ItemError records one per-activity failure for the run summary.
type ItemError struct {
	ActivityID int64
	Err        error
}

// Report summarises one upload pass.
type Report struct {
	Attempted   int
	Succeeded   int
	Failed      int
	Skipped     int
	WouldUpload []int64 // populated in dry-run mode
	Errors      []ItemError
}

// Uploader drains the ledger's pending entries against the remote API.
type Uploader struct {
	api      API
	ledger   *ledger.Ledger
	maxCount int
	dryRun   bool
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures optional behaviour for the Uploader.
type Option func(*Uploader)

// WithMaxCount caps the number of entries attempted per run. Zero means no cap.
func WithMaxCount(n int) Option {
	return func(u *Uploader) { u.maxCount = n }
}

// WithDryRun selects and validates entries without calling the remote API or
// mutating the ledger.
func WithDryRun(dryRun bool) Option {
	return func(u *Uploader) { u.dryRun = dryRun }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// NewUploader constructs an Uploader over the given ledger.
func NewUploader(api API, l *ledger.Ledger, opts ...Option) *Uploader {
	u := &Uploader{
		api:    api,
		ledger: l,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run uploads pending critiques. Per-item failures are recorded and the batch
// continues; only an expired authorization aborts, because every remaining
// item would fail the same way.
func (u *Uploader) Run(ctx context.Context, accessToken string) (Report, error) {
	pending := u.ledger.PendingUpload()
	if u.maxCount > 0 && len(pending) > u.maxCount {
		pending = pending[:u.maxCount]
	}

	var report Report
	for _, entry := range pending {
		if strings.TrimSpace(entry.Text) == "" {
			u.logger.Warn("skipping entry with blank critique", zap.Int64("activity_id", entry.ActivityID))
			observability.RecordUpload("skipped")
			report.Skipped++
			continue
		}

		if u.dryRun {
			u.logger.Info("dry run: would update description",
				zap.Int64("activity_id", entry.ActivityID),
				zap.String("preview", preview(entry.Text)))
			observability.RecordUpload("dry_run")
			report.WouldUpload = append(report.WouldUpload, entry.ActivityID)
			continue
		}

		report.Attempted++
		if _, err := u.api.UpdateDescription(ctx, accessToken, entry.ActivityID, entry.Text); err != nil {
			if errors.Is(err, domain.ErrAuthExpired) {
				return report, fmt.Errorf("upload of activity %d: %w", entry.ActivityID, err)
			}
			u.logger.Error("upload failed, entry left pending",
				zap.Int64("activity_id", entry.ActivityID), zap.Error(err))
			observability.RecordUpload("failed")
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ActivityID: entry.ActivityID, Err: err})
			continue
		}

		if err := u.ledger.MarkUploaded(ctx, entry.ActivityID, u.now()); err != nil {
			return report, err
		}
		observability.RecordUpload("succeeded")
		report.Succeeded++
		u.logger.Info("description updated", zap.Int64("activity_id", entry.ActivityID))
	}
	return report, nil
}

func preview(text string) string {
	flat := strings.ReplaceAll(text, "\n", " ")
	if len(flat) > 60 {
		return flat[:60] + "..."
	}
	return flat
}
