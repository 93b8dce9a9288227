// Package ledger is the durable idempotency record of the pipeline: one
// entry per activity id holding the generated critique and its upload status.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zjywill/StravaCritiques/internal/domain"
)

// Ledger maps activity ids to critique entries. It is the single source of
// truth for "has this activity been handled", which makes the pipeline safe
// to re-invoke after partial failure. Mutations persist immediately so a
// crash never loses completed work.
type Ledger struct {
	store   Storage
	entries map[int64]domain.Critique
	logger  *zap.Logger
	now     func() time.Time
}

// LedgerOption configures optional behaviour for the Ledger.
type LedgerOption func(*Ledger)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// Open loads the ledger from storage. A missing file starts an empty ledger;
// a corrupt one is a hard error.
func Open(ctx context.Context, store Storage, opts ...LedgerOption) (*Ledger, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[int64]domain.Critique)
	}
	l := &Ledger{
		store:   store,
		entries: entries,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// PendingGeneration returns the activities that still need a critique: those
// without a ledger entry, or all of them when regenerate is set.
func (l *Ledger) PendingGeneration(activities []domain.Activity, regenerate bool) []domain.Activity {
	var pending []domain.Activity
	for _, act := range activities {
		if _, ok := l.entries[act.ID]; ok && !regenerate {
			continue
		}
		pending = append(pending, act)
	}
	return pending
}

// Upsert records the critique text for an activity and persists the ledger.
// Re-upserting identical text is a no-op. Replacing the text of an existing
// entry resets the upload status, so the new text is uploaded on the next
// pass.
func (l *Ledger) Upsert(ctx context.Context, activityID int64, text string) error {
	if existing, ok := l.entries[activityID]; ok && existing.Text == text {
		return nil
	}
	l.entries[activityID] = domain.Critique{
		ActivityID:  activityID,
		Text:        text,
		GeneratedAt: l.now().UTC(),
	}
	if err := l.store.Save(ctx, l.entries); err != nil {
		return fmt.Errorf("persist ledger after upsert of %d: %w", activityID, err)
	}
	l.logger.Debug("critique recorded", zap.Int64("activity_id", activityID))
	return nil
}

// PendingUpload returns the entries not yet uploaded, ordered by activity id
// so runs are deterministic.
func (l *Ledger) PendingUpload() []domain.Critique {
	var pending []domain.Critique
	for _, entry := range l.entries {
		if !entry.Uploaded {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ActivityID < pending[j].ActivityID })
	return pending
}

// MarkUploaded flips the upload status of one entry and persists the ledger.
// This is the only mutation the uploader is allowed to make.
func (l *Ledger) MarkUploaded(ctx context.Context, activityID int64, at time.Time) error {
	entry, ok := l.entries[activityID]
	if !ok {
		return fmt.Errorf("activity %d: %w", activityID, domain.ErrNotFound)
	}
	at = at.UTC()
	entry.Uploaded = true
	entry.UploadedAt = &at
	l.entries[activityID] = entry
	if err := l.store.Save(ctx, l.entries); err != nil {
		return fmt.Errorf("persist ledger after marking %d uploaded: %w", activityID, err)
	}
	return nil
}

// Get returns the entry for an activity id.
func (l *Ledger) Get(activityID int64) (domain.Critique, bool) {
	entry, ok := l.entries[activityID]
	return entry, ok
}

// Len returns the number of ledger entries.
func (l *Ledger) Len() int { return len(l.entries) }
