// Package fetch paginates the remote activities endpoint and persists the
// result as an atomic snapshot for downstream stages.
package fetch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/observability"
	"github.com/zjywill/StravaCritiques/internal/strava"
)

// API is the slice of the Strava client the fetcher needs.
type API interface {
	ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]strava.RawActivity, error)
}

// Fetcher pulls pages of activities and writes the snapshot.
type Fetcher struct {
	api       API
	snapshots *SnapshotStore
	logger    *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(api API, snapshots *SnapshotStore, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{api: api, snapshots: snapshots, logger: logger}
}

// Fetch pages through the activities endpoint until a short page or maxPages,
// normalises the results (most recent first), and persists the snapshot.
// An authorization error mid-fetch propagates unchanged; the orchestrator is
// responsible for refreshing and restarting, not the fetcher.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string, perPage, maxPages int) ([]domain.Activity, error) {
	if perPage <= 0 {
		perPage = 1
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	var raws []strava.RawActivity
	for page := 1; page <= maxPages; page++ {
		batch, err := f.api.ListActivities(ctx, accessToken, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		raws = append(raws, batch...)
		if len(batch) < perPage {
			break
		}
	}

	activities := make([]domain.Activity, 0, len(raws))
	for _, raw := range raws {
		act, err := domain.ParseActivity(raw)
		if err != nil {
			// A malformed entry from the remote side is logged and dropped
			// rather than poisoning the whole batch.
			f.logger.Warn("skipping malformed activity", zap.Error(err))
			continue
		}
		activities = append(activities, act)
	}

	if err := f.snapshots.Save(activities); err != nil {
		return nil, err
	}
	observability.RecordActivitiesFetched(len(activities))
	f.logger.Info("activities fetched", zap.Int("count", len(activities)))
	return activities, nil
}

// LoadSnapshot returns the activities persisted by the previous fetch, for
// runs that skip the fetch stage.
func (f *Fetcher) LoadSnapshot() ([]domain.Activity, error) {
	return f.snapshots.Load()
}
