package event

import (
	"errors"
	"testing"
	"time"
)

func issuePayload(action string) RawPayload {
	return RawPayload{
		"delivery_id": "d-1",
		"event":       "issues",
		"action":      action,
		"repository":  map[string]any{"full_name": "octo/widgets"},
		"sender":      map[string]any{"login": "alice"},
		"issue": map[string]any{
			"number":     float64(42),
			"title":      "App crashes on startup",
			"body":       "Stack trace attached",
			"updated_at": "2026-08-01T10:00:00Z",
			"labels": []any{
				map[string]any{"name": "bug"},
				map[string]any{"name": "priority:high"},
			},
		},
	}
}

func TestNormalizeIssueOpened(t *testing.T) {
	ev, err := Normalize(issuePayload("opened"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.ID != "d-1" {
		t.Errorf("expected ID d-1, got %q", ev.ID)
	}
	if ev.Kind != IssueOpened {
		t.Errorf("expected IssueOpened, got %v", ev.Kind)
	}
	if ev.Repo != "octo/widgets" {
		t.Errorf("expected repo octo/widgets, got %q", ev.Repo)
	}
	if ev.Actor != "alice" {
		t.Errorf("expected actor alice, got %q", ev.Actor)
	}
	if ev.TargetNumber != 42 {
		t.Errorf("expected target 42, got %d", ev.TargetNumber)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, ev.Timestamp)
	}
	if len(ev.ExistingLabels) != 2 || ev.ExistingLabels[0] != "bug" || ev.ExistingLabels[1] != "priority:high" {
		t.Errorf("unexpected labels: %v", ev.ExistingLabels)
	}
}

func TestNormalizePullMergedVsClosed(t *testing.T) {
	payload := func(merged bool) RawPayload {
		return RawPayload{
			"delivery_id": "d-2",
			"event":       "pull_request",
			"action":      "closed",
			"repository":  map[string]any{"full_name": "octo/widgets"},
			"sender":      map[string]any{"login": "bob"},
			"pull_request": map[string]any{
				"number":     float64(7),
				"title":      "Fix race",
				"merged":     merged,
				"additions":  float64(12),
				"deletions":  float64(3),
				"updated_at": "2026-08-02T09:30:00Z",
			},
		}
	}

	ev, err := Normalize(payload(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != PullMerged {
		t.Errorf("expected PullMerged, got %v", ev.Kind)
	}
	if ev.Additions != 12 || ev.Deletions != 3 {
		t.Errorf("unexpected diff stats: +%d -%d", ev.Additions, ev.Deletions)
	}

	ev, err = Normalize(payload(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != PullClosed {
		t.Errorf("expected PullClosed, got %v", ev.Kind)
	}
}

func TestNormalizeComment(t *testing.T) {
	raw := RawPayload{
		"delivery_id": "d-3",
		"event":       "issue_comment",
		"action":      "created",
		"repository":  map[string]any{"full_name": "octo/widgets"},
		"sender":      map[string]any{"login": "carol"},
		"issue": map[string]any{
			"number": float64(42),
			"title":  "App crashes on startup",
		},
		"comment": map[string]any{
			"body":       "Can you share the logs?",
			"created_at": "2026-08-01T11:00:00Z",
		},
	}

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != Comment {
		t.Errorf("expected Comment, got %v", ev.Kind)
	}
	if ev.Body != "Can you share the logs?" {
		t.Errorf("expected comment body, got %q", ev.Body)
	}
	if ev.TargetNumber != 42 {
		t.Errorf("expected target 42, got %d", ev.TargetNumber)
	}
}

func TestNormalizePush(t *testing.T) {
	raw := RawPayload{
		"delivery_id": "d-4",
		"event":       "push",
		"repository":  map[string]any{"full_name": "octo/widgets"},
		"sender":      map[string]any{"login": "dave"},
		"head_commit": map[string]any{
			"message":   "tighten retry bounds",
			"timestamp": "2026-08-03T08:00:00Z",
		},
	}

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != Push {
		t.Errorf("expected Push, got %v", ev.Kind)
	}
	if ev.Title != "tighten retry bounds" {
		t.Errorf("expected commit message as title, got %q", ev.Title)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(RawPayload)
	}{
		{"missing delivery id", func(r RawPayload) { delete(r, "delivery_id") }},
		{"missing repository", func(r RawPayload) { delete(r, "repository") }},
		{"repo without owner", func(r RawPayload) {
			r["repository"] = map[string]any{"full_name": "widgets"}
		}},
		{"missing sender", func(r RawPayload) { delete(r, "sender") }},
		{"unsupported event", func(r RawPayload) { r["event"] = "deployment" }},
		{"unsupported action", func(r RawPayload) { r["action"] = "labeled" }},
		{"missing issue number", func(r RawPayload) {
			issue := r["issue"].(map[string]any)
			delete(issue, "number")
		}},
		{"unparseable timestamp", func(r RawPayload) {
			issue := r["issue"].(map[string]any)
			issue["updated_at"] = "yesterday"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := issuePayload("opened")
			tt.mutate(raw)
			_, err := Normalize(raw)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestNormalizeTimestampFallback(t *testing.T) {
	raw := issuePayload("opened")
	issue := raw["issue"].(map[string]any)
	delete(issue, "updated_at")
	issue["created_at"] = "2026-07-15T12:00:00Z"

	ev, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("expected created_at fallback %v, got %v", want, ev.Timestamp)
	}
}
