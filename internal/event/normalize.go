package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed indicates a payload that cannot be projected into an Event.
// Callers should reject the payload without side effects.
var ErrMalformed = errors.New("malformed event payload")

// RawPayload is the validated, already-authenticated webhook payload as
// delivered by the transport. The receiver injects the platform delivery
// GUID under "delivery_id" and the webhook event name under "event".
type RawPayload = map[string]any

// Normalize projects a raw platform payload into a canonical Event.
// Anything that does not map cleanly is rejected with ErrMalformed;
// untyped data never flows past this boundary.
func Normalize(raw RawPayload) (Event, error) {
	id := str(raw, "delivery_id")
	if id == "" {
		return Event{}, fmt.Errorf("%w: missing delivery_id", ErrMalformed)
	}

	repo := str(dig(raw, "repository"), "full_name")
	if repo == "" || !strings.Contains(repo, "/") {
		return Event{}, fmt.Errorf("%w: missing or invalid repository.full_name", ErrMalformed)
	}

	actor := str(dig(raw, "sender"), "login")
	if actor == "" {
		return Event{}, fmt.Errorf("%w: missing sender.login", ErrMalformed)
	}

	name := str(raw, "event")
	action := str(raw, "action")

	switch name {
	case "issues":
		return normalizeIssue(raw, id, repo, actor, action)
	case "pull_request":
		return normalizePull(raw, id, repo, actor, action)
	case "issue_comment":
		return normalizeComment(raw, id, repo, actor, action)
	case "push":
		return normalizePush(raw, id, repo, actor)
	default:
		return Event{}, fmt.Errorf("%w: unsupported event %q", ErrMalformed, name)
	}
}

func normalizeIssue(raw RawPayload, id, repo, actor, action string) (Event, error) {
	var kind Kind
	switch action {
	case "opened":
		kind = IssueOpened
	case "edited":
		kind = IssueEdited
	case "closed":
		kind = IssueClosed
	default:
		return Event{}, fmt.Errorf("%w: unsupported issues action %q", ErrMalformed, action)
	}

	issue := dig(raw, "issue")
	number := num(issue, "number")
	if number <= 0 {
		return Event{}, fmt.Errorf("%w: missing issue.number", ErrMalformed)
	}
	ts, err := timestamp(issue)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:             id,
		Repo:           repo,
		Kind:           kind,
		Actor:          actor,
		Timestamp:      ts,
		Title:          str(issue, "title"),
		Body:           str(issue, "body"),
		ExistingLabels: labelNames(issue),
		TargetNumber:   number,
	}, nil
}

func normalizePull(raw RawPayload, id, repo, actor, action string) (Event, error) {
	pr := dig(raw, "pull_request")
	number := num(pr, "number")
	if number <= 0 {
		return Event{}, fmt.Errorf("%w: missing pull_request.number", ErrMalformed)
	}

	var kind Kind
	switch action {
	case "opened":
		kind = PullOpened
	case "closed":
		if b, _ := pr["merged"].(bool); b {
			kind = PullMerged
		} else {
			kind = PullClosed
		}
	default:
		return Event{}, fmt.Errorf("%w: unsupported pull_request action %q", ErrMalformed, action)
	}

	ts, err := timestamp(pr)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:             id,
		Repo:           repo,
		Kind:           kind,
		Actor:          actor,
		Timestamp:      ts,
		Title:          str(pr, "title"),
		Body:           str(pr, "body"),
		ExistingLabels: labelNames(pr),
		TargetNumber:   number,
		Additions:      num(pr, "additions"),
		Deletions:      num(pr, "deletions"),
	}, nil
}

func normalizeComment(raw RawPayload, id, repo, actor, action string) (Event, error) {
	if action != "created" {
		return Event{}, fmt.Errorf("%w: unsupported issue_comment action %q", ErrMalformed, action)
	}

	issue := dig(raw, "issue")
	number := num(issue, "number")
	if number <= 0 {
		return Event{}, fmt.Errorf("%w: missing issue.number", ErrMalformed)
	}
	comment := dig(raw, "comment")
	ts, err := timestamp(comment)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:           id,
		Repo:         repo,
		Kind:         Comment,
		Actor:        actor,
		Timestamp:    ts,
		Title:        str(issue, "title"),
		Body:         str(comment, "body"),
		TargetNumber: number,
	}, nil
}

func normalizePush(raw RawPayload, id, repo, actor string) (Event, error) {
	head := dig(raw, "head_commit")
	ts, err := timestamp(head)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:        id,
		Repo:      repo,
		Kind:      Push,
		Actor:     actor,
		Timestamp: ts,
		Title:     str(head, "message"),
	}, nil
}

// timestamp extracts the event instant from an object's updated_at,
// created_at, or timestamp field, in that order.
func timestamp(obj map[string]any) (time.Time, error) {
	for _, key := range []string{"updated_at", "created_at", "timestamp"} {
		s := str(obj, key)
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: missing or unparseable timestamp", ErrMalformed)
}

func labelNames(obj map[string]any) []string {
	rawLabels, _ := obj["labels"].([]any)
	var names []string
	for _, rl := range rawLabels {
		l, _ := rl.(map[string]any)
		if name := str(l, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func dig(obj map[string]any, key string) map[string]any {
	m, _ := obj[key].(map[string]any)
	return m
}

func str(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}

// num reads a numeric field that may arrive as float64 (JSON) or int.
func num(obj map[string]any, key string) int {
	if obj == nil {
		return 0
	}
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
