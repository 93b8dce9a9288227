package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjywill/StravaCritiques/internal/domain"
	"github.com/zjywill/StravaCritiques/internal/ledger"
)

type stubAPI struct {
	calls    []int64
	failWith map[int64]error
}

func (s *stubAPI) UpdateDescription(_ context.Context, _ string, activityID int64, text string) (string, error) {
	s.calls = append(s.calls, activityID)
	if err, ok := s.failWith[activityID]; ok {
		return "", err
	}
	return text, nil
}

func seededLedger(t *testing.T, texts map[int64]string) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.NewMemStorage())
	require.NoError(t, err)
	for id, text := range texts {
		require.NoError(t, l.Upsert(ctx, id, text))
	}
	return l
}

func TestRunUploadsPendingAndMarksLedger(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "one", 2: "two"})
	api := &stubAPI{}
	at := time.Date(2025, time.November, 2, 18, 0, 0, 0, time.UTC)
	u := NewUploader(api, l, WithClock(func() time.Time { return at }))

	report, err := u.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, []int64{1, 2}, api.calls)

	entry, _ := l.Get(1)
	require.True(t, entry.Uploaded)
	require.Equal(t, at, *entry.UploadedAt)
	require.Empty(t, l.PendingUpload())
}

func TestRunHonoursMaxCount(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "a", 2: "b", 3: "c"})
	api := &stubAPI{}
	u := NewUploader(api, l, WithMaxCount(2))

	report, err := u.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, []int64{1, 2}, api.calls, "cap selects the lowest pending ids")
	require.Len(t, l.PendingUpload(), 1)
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "a", 2: "b", 3: "c", 4: "d", 5: "e"})
	api := &stubAPI{}
	u := NewUploader(api, l, WithDryRun(true))

	report, err := u.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Empty(t, api.calls, "dry run never calls the remote API")
	require.Equal(t, []int64{1, 2, 3, 4, 5}, report.WouldUpload)
	require.Zero(t, report.Attempted)
	require.Len(t, l.PendingUpload(), 5, "dry run leaves every entry pending")
}

func TestRunSkipsBlankCritiques(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "   \n", 2: "real text"})
	api := &stubAPI{}
	u := NewUploader(api, l)

	report, err := u.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, []int64{2}, api.calls)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "a", 2: "b", 3: "c"})
	api := &stubAPI{failWith: map[int64]error{2: domain.ErrRemoteValidation}}
	u := NewUploader(api, l)

	report, err := u.Run(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Equal(t, int64(2), report.Errors[0].ActivityID)

	// The failed entry stays pending for the next run.
	pending := l.PendingUpload()
	require.Len(t, pending, 1)
	require.Equal(t, int64(2), pending[0].ActivityID)
}

func TestRunAbortsOnExpiredAuth(t *testing.T) {
	l := seededLedger(t, map[int64]string{1: "a", 2: "b", 3: "c"})
	api := &stubAPI{failWith: map[int64]error{2: domain.ErrAuthExpired}}
	u := NewUploader(api, l)

	report, err := u.Run(context.Background(), "tok")
	require.ErrorIs(t, err, domain.ErrAuthExpired)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, []int64{1, 2}, api.calls, "no further entries attempted after auth expiry")
	require.True(t, errors.Is(err, domain.ErrAuthExpired))
}

func TestPreviewTruncatesAndFlattens(t *testing.T) {
	require.Equal(t, "short one", preview("short\none"))
	long := preview(string(make([]byte, 100)))
	require.Len(t, long, 63)
}
