package pipeline

import (
	"time"

	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/labels"
)

// Status is the result of submitting one raw payload.
type Status int

const (
	Accepted Status = iota
	DuplicateIgnored
	Rejected
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case DuplicateIgnored:
		return "duplicate_ignored"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the observable result of one submission. Every rejected or
// failed event produces an Outcome rather than disappearing.
type Outcome struct {
	TraceID string
	EventID string
	Repo    string
	Status  Status

	// Reason is set when Status is Rejected.
	Reason string

	// Classification and ChangeSet are set when the event was
	// classifiable (issue/PR opened or edited).
	Classification *classify.Result
	ChangeSet      *labels.ChangeSet

	// Snapshot is the health snapshot produced by this event, when the
	// health branch succeeded.
	Snapshot *health.Snapshot

	// BranchErrors maps a failed consumer branch (classify, health,
	// activity, persist) to its error. A branch failure never aborts
	// sibling branches.
	BranchErrors map[string]string

	Duration time.Duration
}

// Failed reports whether any consumer branch failed.
func (o Outcome) Failed() bool {
	return len(o.BranchErrors) > 0
}
