package classify

import (
	"reflect"
	"testing"

	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/event"
)

func TestPriorityLabels(t *testing.T) {
	e := defaultEngine(t)

	tests := []struct {
		name  string
		title string
		body  string
		want  string // expected priority label, "" for none
	}{
		{"critical keyword", "URGENT: system down", "everything is broken", "priority:critical"},
		{"high keyword", "Important bug in parser", "please fix asap", "priority:high"},
		{"low keyword", "Minor typo in docs", "trivial fix", "priority:low"},
		{"no keywords default to medium", "Bug in parser", "it fails sometimes", ""},
		{"critical beats low", "urgent but trivial bug", "", "priority:critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Classify(issueEvent(tt.title, tt.body))
			var got string
			for _, l := range result.SuggestedLabels {
				if len(l) > 9 && l[:9] == "priority:" {
					got = l
				}
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q (labels %v)", tt.want, got, result.SuggestedLabels)
			}
		})
	}
}

func TestComponents(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			"backticked file path",
			"The error is thrown from `auth/login.go` on line 40.",
			[]string{"component:auth/login.go"},
		},
		{
			"module mention",
			"This happens in parser module when input is empty.",
			[]string{"component:parser"},
		},
		{
			"component mention",
			"The database component times out under load.",
			[]string{"component:database"},
		},
		{
			"deduplicated and sorted",
			"Crash in parser module. The parser component is at fault, see `parser/lex.go`.",
			[]string{"component:parser", "component:parser/lex.go"},
		},
		{
			"empty body",
			"",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := components(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComponentsCapped(t *testing.T) {
	body := "Affects `a.go`, `b.go`, `c.go`, and `d.go` equally."
	got := components(body)
	if len(got) != maxComponentLabels {
		t.Errorf("expected %d component labels, got %v", maxComponentLabels, got)
	}
}

func TestSizeBucket(t *testing.T) {
	tests := []struct {
		changes int
		want    string
	}{
		{0, "small"},
		{19, "small"},
		{20, "medium"},
		{99, "medium"},
		{100, "large"},
		{499, "large"},
		{500, "xl"},
		{5000, "xl"},
	}
	for _, tt := range tests {
		if got := sizeBucket(tt.changes); got != tt.want {
			t.Errorf("sizeBucket(%d): expected %q, got %q", tt.changes, tt.want, got)
		}
	}
}

func TestPullRequestGetsSizeLabel(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: config.DefaultRules(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := e.Classify(event.Event{
		Kind:      event.PullOpened,
		Title:     "Fix crash in exporter",
		Additions: 120,
		Deletions: 30,
	})

	if result.Category != Bug {
		t.Fatalf("expected Bug, got %v", result.Category)
	}
	if !containsLabel(result.SuggestedLabels, "size:large") {
		t.Errorf("expected size:large, got %v", result.SuggestedLabels)
	}
}

func TestPullRequestGetsNoPriorityLabel(t *testing.T) {
	e := defaultEngine(t)

	result := e.Classify(event.Event{
		Kind:  event.PullOpened,
		Title: "urgent crash fix",
	})

	for _, l := range result.SuggestedLabels {
		if len(l) > 9 && l[:9] == "priority:" {
			t.Errorf("pull requests should not get priority labels, got %v", result.SuggestedLabels)
		}
	}
}
