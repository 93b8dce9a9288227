package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rawActivity(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestParseActivity(t *testing.T) {
	raw := rawActivity(t, `{
		"id": 987654321,
		"name": "Morning Run",
		"sport_type": "TrailRun",
		"type": "Run",
		"start_date": "2025-11-02T06:30:00Z",
		"distance": 10240.5,
		"moving_time": 3605,
		"average_heartrate": 152.3
	}`)

	act, err := ParseActivity(raw)
	require.NoError(t, err)
	require.Equal(t, int64(987654321), act.ID)
	require.Equal(t, "Morning Run", act.Name)
	require.Equal(t, ActivityRun, act.Type)
	require.Equal(t, time.Date(2025, time.November, 2, 6, 30, 0, 0, time.UTC), act.StartTime)
	require.Equal(t, 10240.5, act.Distance)
	require.Equal(t, 3605*time.Second, act.MovingTime)
	// Unknown fields ride along untouched.
	require.Contains(t, act.Raw, "average_heartrate")
}

func TestParseActivityRequiresID(t *testing.T) {
	_, err := ParseActivity(rawActivity(t, `{"name": "nameless"}`))
	require.Error(t, err)
}

func TestParseActivityLegacyTypeField(t *testing.T) {
	act, err := ParseActivity(rawActivity(t, `{"id": 1, "type": "Ride"}`))
	require.NoError(t, err)
	require.Equal(t, ActivityRide, act.Type)
}

func TestNormaliseType(t *testing.T) {
	cases := map[string]ActivityType{
		"Ride":        ActivityRide,
		"VirtualRide": ActivityRide,
		"Run":         ActivityRun,
		"Swim":        ActivitySwim,
		"Hike":        ActivityWalk,
		"Walk":        ActivityWalk,
		"Yoga":        ActivityOther,
		"":            ActivityOther,
	}
	for sport, want := range cases {
		require.Equal(t, want, normaliseType(sport), "sport %q", sport)
	}
}
