package fetch

import (
	"fmt"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/storage"
	"github.com/zjywill/StravaCritiques/internal/strava"
)

// SnapshotStore persists the point-in-time result of a fetch. The on-disk
// format is the raw activity array exactly as the API returned it, so the
// file stays readable by anything that already consumed it.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore constructs a store writing to path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save atomically replaces the snapshot with the raw form of activities.
func (s *SnapshotStore) Save(activities []domain.Activity) error {
	raws := make([]strava.RawActivity, 0, len(activities))
	for _, act := range activities {
		raws = append(raws, act.Raw)
	}
	if err := storage.WriteJSONAtomic(s.path, raws); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot back into validated activities. A missing snapshot
// surfaces domain.ErrNotFound, an unparsable one domain.ErrCorruptState.
func (s *SnapshotStore) Load() ([]domain.Activity, error) {
	var raws []strava.RawActivity
	if err := storage.ReadJSON(s.path, &raws); err != nil {
		return nil, err
	}

	activities := make([]domain.Activity, 0, len(raws))
	for _, raw := range raws {
		act, err := domain.ParseActivity(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", s.path, err, domain.ErrCorruptState)
		}
		activities = append(activities, act)
	}
	return activities, nil
}
