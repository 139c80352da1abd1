package event

import "time"

// Kind describes what happened on the platform.
type Kind int

const (
	IssueOpened Kind = iota
	IssueEdited
	IssueClosed
	PullOpened
	PullMerged
	PullClosed
	Push
	Comment
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case IssueOpened:
		return "issue_opened"
	case IssueEdited:
		return "issue_edited"
	case IssueClosed:
		return "issue_closed"
	case PullOpened:
		return "pull_opened"
	case PullMerged:
		return "pull_merged"
	case PullClosed:
		return "pull_closed"
	case Push:
		return "push"
	case Comment:
		return "comment"
	default:
		return "unknown"
	}
}

// IsIssue reports whether the kind targets an issue.
func (k Kind) IsIssue() bool {
	return k == IssueOpened || k == IssueEdited || k == IssueClosed
}

// IsPull reports whether the kind targets a pull request.
func (k Kind) IsPull() bool {
	return k == PullOpened || k == PullMerged || k == PullClosed
}

// Event is the canonical representation of one platform activity
// notification. It is immutable once constructed by Normalize.
type Event struct {
	ID             string
	Repo           string // owner/name
	Kind           Kind
	Actor          string
	Timestamp      time.Time
	Title          string
	Body           string
	ExistingLabels []string
	TargetNumber   int

	// Additions and Deletions are populated for pull request events only.
	Additions int
	Deletions int
}
