package health

import "time"

// Snapshot is an immutable view of one repository's health at a point in
// time. A snapshot is recomputed, never patched: each computation produces
// a fresh value with a strictly higher Revision, so readers always observe
// a complete, consistent state.
type Snapshot struct {
	Repo     string    `json:"repo"`
	Revision uint64    `json:"revision"`
	AsOf     time.Time `json:"as_of"`

	OpenIssueCount             int     `json:"open_issue_count"`
	StaleIssueRatio            float64 `json:"stale_issue_ratio"`
	MedianFirstResponseSeconds float64 `json:"median_first_response_seconds"`
	MergeRate                  float64 `json:"merge_rate"`
	ClosureRate                float64 `json:"closure_rate"`
	Score                      float64 `json:"score"`
}

// Grade maps a score to the rating bands used by the dashboard.
func (s Snapshot) Grade() string {
	switch {
	case s.Score >= 90:
		return "excellent"
	case s.Score >= 75:
		return "good"
	case s.Score >= 60:
		return "fair"
	case s.Score >= 40:
		return "poor"
	default:
		return "critical"
	}
}
