package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActivityType is the normalised sport classification of an activity.
type ActivityType string

const (
	ActivityRide  ActivityType = "ride"
	ActivityRun   ActivityType = "run"
	ActivitySwim  ActivityType = "swim"
	ActivityWalk  ActivityType = "walk"
	ActivityOther ActivityType = "other"
)

// Activity is the validated view of one remote activity. Raw carries every
// field the API returned so downstream prompts keep full fidelity even when
// the remote schema grows fields this struct does not know about.
type Activity struct {
	ID         int64
	Name       string
	Type       ActivityType
	StartTime  time.Time
	Distance   float64 // meters
	MovingTime time.Duration
	Raw        map[string]json.RawMessage
}

// ParseActivity validates a raw activity object from the remote API.
// The remote-assigned id is required; everything else degrades gracefully.
func ParseActivity(raw map[string]json.RawMessage) (Activity, error) {
	act := Activity{Raw: raw}

	idRaw, ok := raw["id"]
	if !ok {
		return Activity{}, fmt.Errorf("activity missing id field")
	}
	if err := json.Unmarshal(idRaw, &act.ID); err != nil {
		return Activity{}, fmt.Errorf("activity id: %w", err)
	}

	if nameRaw, ok := raw["name"]; ok {
		_ = json.Unmarshal(nameRaw, &act.Name)
	}

	// sport_type supersedes the legacy type field when both are present.
	var sport string
	if sportRaw, ok := raw["sport_type"]; ok {
		_ = json.Unmarshal(sportRaw, &sport)
	}
	if sport == "" {
		if typeRaw, ok := raw["type"]; ok {
			_ = json.Unmarshal(typeRaw, &sport)
		}
	}
	act.Type = normaliseType(sport)

	if startRaw, ok := raw["start_date"]; ok {
		var start string
		if err := json.Unmarshal(startRaw, &start); err == nil {
			if ts, err := time.Parse(time.RFC3339, start); err == nil {
				act.StartTime = ts
			}
		}
	}

	if distRaw, ok := raw["distance"]; ok {
		_ = json.Unmarshal(distRaw, &act.Distance)
	}

	if movingRaw, ok := raw["moving_time"]; ok {
		var seconds float64
		if err := json.Unmarshal(movingRaw, &seconds); err == nil {
			act.MovingTime = time.Duration(seconds) * time.Second
		}
	}

	return act, nil
}

func normaliseType(sport string) ActivityType {
	switch sport {
	case "Ride", "VirtualRide", "GravelRide", "MountainBikeRide", "EBikeRide":
		return ActivityRide
	case "Run", "TrailRun", "VirtualRun":
		return ActivityRun
	case "Swim":
		return ActivitySwim
	case "Walk", "Hike":
		return ActivityWalk
	default:
		return ActivityOther
	}
}
