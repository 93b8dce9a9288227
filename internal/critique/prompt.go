package critique

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zjywill/StravaCritiques/internal/domain"
)

// buildPrompt renders the sport-specific metric summary followed by the raw
// activity JSON, so the model sees both the digested numbers and every field
// the API returned.
func buildPrompt(activity domain.Activity) (string, error) {
	raw, err := json.MarshalIndent(activity.Raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal activity: %w", err)
	}

	var b strings.Builder
	b.WriteString(header(activity))
	b.WriteString("\n")
	for _, line := range metricLines(activity) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nActivity JSON:\n")
	b.Write(raw)
	return b.String(), nil
}

func header(activity domain.Activity) string {
	name := activity.Name
	if name == "" {
		name = "Unnamed workout"
	}
	return fmt.Sprintf("%s | %s", name, activity.Type)
}

func metricLines(activity domain.Activity) []string {
	lines := []string{
		"Distance: " + formatDistance(activity.Distance),
		"Moving time: " + formatDuration(activity.MovingTime),
	}
	switch activity.Type {
	case domain.ActivityRun, domain.ActivityWalk:
		lines = append(lines, "Average pace: "+formatPace(activity.Distance, activity.MovingTime))
	case domain.ActivityRide, domain.ActivitySwim:
		lines = append(lines, "Average speed: "+formatSpeed(activity.Distance, activity.MovingTime))
	}
	return lines
}

func formatDistance(meters float64) string {
	if meters <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

func formatPace(meters float64, moving time.Duration) string {
	km := meters / 1000
	if km <= 0 || moving <= 0 {
		return "unknown"
	}
	secPerKm := int(moving.Seconds() / km)
	return fmt.Sprintf("%d:%02d/km", secPerKm/60, secPerKm%60)
}

func formatSpeed(meters float64, moving time.Duration) string {
	if meters <= 0 || moving <= 0 {
		return "unknown"
	}
	kmh := (meters / 1000) / moving.Hours()
	return fmt.Sprintf("%.1f km/h", kmh)
}
