package notify

import (
	"fmt"
	"math"
	"strings"
)

// FormatLabels formats suggested labels as a readable string.
// Example: "`bug`, `priority:high`"
func FormatLabels(labels []string) string {
	if len(labels) == 0 {
		return "None"
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("`%s`", l)
	}
	return strings.Join(parts, ", ")
}

// FormatConfidence renders a confidence ratio as a percentage.
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(confidence*100)))
}

// FormatScore renders a health score with its grade band.
// Example: "37.5/100 (poor)"
func FormatScore(score float64, grade string) string {
	return fmt.Sprintf("%.1f/100 (%s)", score, grade)
}

// headline returns the notification headline for either kind.
func headline(n Notification) string {
	if n.Kind == KindHealth {
		return "Repository Health Alert"
	}
	return "Issue Auto-Labeled"
}
