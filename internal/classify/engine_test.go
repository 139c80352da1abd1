package classify

import (
	"reflect"
	"testing"

	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/event"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.ClassificationConfig{
		Rules:      config.DefaultRules(),
		Priorities: config.DefaultPriorities(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

func issueEvent(title, body string) event.Event {
	return event.Event{
		ID:           "d-1",
		Repo:         "octo/widgets",
		Kind:         event.IssueOpened,
		Actor:        "alice",
		Title:        title,
		Body:         body,
		TargetNumber: 1,
	}
}

func TestClassifyBugReport(t *testing.T) {
	e := defaultEngine(t)

	result := e.Classify(issueEvent(
		"App crashes on startup",
		"I get a NullPointerException when launching the app.",
	))

	if result.Category != Bug {
		t.Fatalf("expected Bug, got %v", result.Category)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Errorf("confidence out of range: %f", result.Confidence)
	}
	if !containsLabel(result.SuggestedLabels, "bug") {
		t.Errorf("expected bug label, got %v", result.SuggestedLabels)
	}
	if len(result.MatchedRules) == 0 {
		t.Error("expected matched rules to be recorded")
	}
}

func TestClassifyFeatureRequest(t *testing.T) {
	e := defaultEngine(t)

	result := e.Classify(issueEvent(
		"Add dark mode support",
		"It would be great to implement a dark theme. This is a feature request.",
	))

	if result.Category != Feature {
		t.Fatalf("expected Feature, got %v", result.Category)
	}
	if !containsLabel(result.SuggestedLabels, "feature") {
		t.Errorf("expected feature label, got %v", result.SuggestedLabels)
	}
}

func TestClassifyNoMatches(t *testing.T) {
	e := defaultEngine(t)

	result := e.Classify(issueEvent("Weekly sync notes", "Notes from the meeting."))

	if result.Category != Unclassified {
		t.Errorf("expected Unclassified, got %v", result.Category)
	}
	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", result.Confidence)
	}
	if len(result.SuggestedLabels) != 0 {
		t.Errorf("expected no labels, got %v", result.SuggestedLabels)
	}
}

func TestClassifyBelowMinScore(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		MinScore: config.Float(5.0),
		Rules:    config.DefaultRules(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One body-only match scores 1.0, well below the threshold.
	result := e.Classify(issueEvent("Observations", "Saw one error in the log."))

	if result.Category != Unclassified {
		t.Errorf("expected Unclassified below min score, got %v", result.Category)
	}
	if len(result.MatchedRules) == 0 {
		t.Error("expected matched rules retained for auditing")
	}
	if len(result.SuggestedLabels) != 0 {
		t.Errorf("expected no labels below min score, got %v", result.SuggestedLabels)
	}
}

func TestClassifyTitleWeighsDouble(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"crash"}, Weight: 1.0, Labels: []string{"bug"}},
			{Category: "feature", Terms: []string{"proposal"}, Weight: 1.0, Labels: []string{"feature"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "crash" in the title scores 2.0; "proposal" in the body scores 1.0.
	result := e.Classify(issueEvent("crash on save", "related to the earlier proposal"))

	if result.Category != Bug {
		t.Fatalf("expected title match to win, got %v", result.Category)
	}
	want := 2.0 / 3.0
	if diff := result.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected confidence %f, got %f", want, result.Confidence)
	}
}

func TestClassifyRepeatedTermCountsOnce(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"crash"}, Weight: 1.0, Labels: []string{"bug"}},
			{Category: "feature", Terms: []string{"proposal", "request"}, Weight: 1.0, Labels: []string{"feature"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "crash" appears three times in the body but contributes a single
	// body match; two distinct feature terms outscore it.
	result := e.Classify(issueEvent("", "crash crash crash but really a proposal and a request"))

	if result.Category != Feature {
		t.Errorf("expected Feature, got %v", result.Category)
	}
}

func TestClassifyTieGoesToFirstDeclaredRule(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"weird"}, Weight: 1.0, Labels: []string{"bug"}},
			{Category: "question", Terms: []string{"thing"}, Weight: 1.0, Labels: []string{"question"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := e.Classify(issueEvent("", "a weird thing happened"))

	if result.Category != Bug {
		t.Errorf("expected tie to resolve to first declared rule, got %v", result.Category)
	}
}

func TestClassifyLabelsOnlyFromMatchedRules(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"crash"}, Weight: 1.0, Labels: []string{"bug"}},
			{Category: "bug", Terms: []string{"regression"}, Weight: 1.0, Labels: []string{"regression"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := e.Classify(issueEvent("crash on startup", ""))

	if result.Category != Bug {
		t.Fatalf("expected Bug, got %v", result.Category)
	}
	if !containsLabel(result.SuggestedLabels, "bug") {
		t.Errorf("expected bug label, got %v", result.SuggestedLabels)
	}
	if containsLabel(result.SuggestedLabels, "regression") {
		t.Errorf("non-matching rule leaked its label: %v", result.SuggestedLabels)
	}
}

func TestClassifyWordBoundaries(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"crash", "bug"}, Weight: 1.0, Labels: []string{"bug"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		title string
		want  Category
	}{
		{"crash on startup", Bug},
		{"CRASH ON STARTUP", Bug},
		{"crashing repeatedly", Unclassified},
		{"debugging session notes", Unclassified},
		{"found a bug, fixing it", Bug},
	}
	for _, tt := range tests {
		result := e.Classify(issueEvent(tt.title, ""))
		if result.Category != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.title, tt.want, result.Category)
		}
	}
}

func TestClassifyUnicodeText(t *testing.T) {
	e, err := NewEngine(config.ClassificationConfig{
		Rules: []config.RuleConfig{
			{Category: "bug", Terms: []string{"falla"}, Weight: 1.0, Labels: []string{"bug"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := e.Classify(issueEvent("La aplicación falla al iniciar", ""))
	if result.Category != Bug {
		t.Errorf("expected Bug for unicode title, got %v", result.Category)
	}

	// A letter adjacent to the term is not a word boundary.
	result = e.Classify(issueEvent("fallaría", ""))
	if result.Category != Unclassified {
		t.Errorf("expected no match inside a longer word, got %v", result.Category)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	e := defaultEngine(t)
	ev := issueEvent(
		"Critical crash in exporter",
		"The export fails with an exception. Error in `exporter/csv.go` in the writer module.",
	)

	first := e.Classify(ev)
	for i := 0; i < 50; i++ {
		got := e.Classify(ev)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("iteration %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ClassificationConfig
	}{
		{"empty rules", config.ClassificationConfig{}},
		{"unknown category", config.ClassificationConfig{
			Rules: []config.RuleConfig{{Category: "urgent", Terms: []string{"x"}, Weight: 1.0}},
		}},
		{"zero weight", config.ClassificationConfig{
			Rules: []config.RuleConfig{{Category: "bug", Terms: []string{"x"}, Weight: 0}},
		}},
		{"negative weight", config.ClassificationConfig{
			Rules: []config.RuleConfig{{Category: "bug", Terms: []string{"x"}, Weight: -1}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func containsLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
