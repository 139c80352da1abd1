package classify

import (
	"fmt"
	"regexp"

	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/event"
)

const (
	titleWeight = 2.0
	bodyWeight  = 1.0
)

// Result holds the output of issue/PR classification.
type Result struct {
	Category        Category
	Confidence      float64
	SuggestedLabels []string
	MatchedRules    []RuleMatch
}

// RuleMatch records one rule's contribution to a classification, in rule
// declaration order, for audit and debugging.
type RuleMatch struct {
	Category Category
	Terms    []string
	Score    float64
}

// compiledRule is one configured rule with its term matchers precompiled.
type compiledRule struct {
	category Category
	weight   float64
	labels   []string
	terms    []termMatcher
}

type termMatcher struct {
	term string
	re   *regexp.Regexp
}

// Engine scores events against an ordered, weighted rule set. Classify is
// a pure function: identical input yields identical output regardless of
// call order or concurrency, so the Engine needs no locking.
type Engine struct {
	rules      []compiledRule
	minScore   float64
	priorities []priorityTier
}

// NewEngine compiles the configured rule set. It fails on an empty rule
// set, an unknown category, or a non-positive weight, so a misconfigured
// engine never starts.
func NewEngine(cfg config.ClassificationConfig) (*Engine, error) {
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("classification rule set is empty")
	}

	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		cat, err := ParseCategory(rc.Category)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if rc.Weight <= 0 {
			return nil, fmt.Errorf("rule %d (%s): weight must be positive, got %f", i, rc.Category, rc.Weight)
		}

		cr := compiledRule{category: cat, weight: rc.Weight, labels: rc.Labels}
		for _, term := range rc.Terms {
			cr.terms = append(cr.terms, termMatcher{term: term, re: compileTerm(term)})
		}
		rules = append(rules, cr)
	}

	return &Engine{
		rules:      rules,
		minScore:   cfg.Threshold(),
		priorities: compilePriorities(cfg.Priorities),
	}, nil
}

// compileTerm builds a case-insensitive, Unicode-aware word-boundary
// matcher for a trigger term. Go's \b is ASCII-only, so boundaries are
// expressed as "not a letter, digit, or underscore" on both sides.
func compileTerm(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(term) + `(?:[^\p{L}\p{N}_]|$)`)
}

// Classify scores the event's title and body against the rule set.
// Title matches weigh double; duplicate terms within one field count once.
func (e *Engine) Classify(ev event.Event) Result {
	categoryScores := make(map[Category]float64)
	firstDeclared := make(map[Category]int)
	matchedRules := make(map[int]bool)
	var matched []RuleMatch

	for i, rule := range e.rules {
		if _, seen := firstDeclared[rule.category]; !seen {
			firstDeclared[rule.category] = i
		}

		var score float64
		var terms []string
		for _, tm := range rule.terms {
			inTitle := tm.re.MatchString(ev.Title)
			inBody := ev.Body != "" && tm.re.MatchString(ev.Body)
			if !inTitle && !inBody {
				continue
			}
			terms = append(terms, tm.term)
			if inTitle {
				score += titleWeight * rule.weight
			}
			if inBody {
				score += bodyWeight * rule.weight
			}
		}
		if score == 0 {
			continue
		}

		categoryScores[rule.category] += score
		matchedRules[i] = true
		matched = append(matched, RuleMatch{Category: rule.category, Terms: terms, Score: score})
	}

	winner, winning, total := pickWinner(categoryScores, firstDeclared)

	confidence := 0.0
	if total > 0 {
		confidence = winning / total
	}

	if winning < e.minScore {
		return Result{
			Category:     Unclassified,
			Confidence:   confidence,
			MatchedRules: matched,
		}
	}

	labels := e.winningLabels(winner, matchedRules)
	labels = append(labels, e.deriveLabels(ev)...)

	return Result{
		Category:        winner,
		Confidence:      confidence,
		SuggestedLabels: dedupeLabels(labels),
		MatchedRules:    matched,
	}
}

// pickWinner selects the highest-scoring category; ties go to the
// category whose rule was declared first.
func pickWinner(scores map[Category]float64, firstDeclared map[Category]int) (winner Category, winning, total float64) {
	winnerIdx := -1
	for cat, score := range scores {
		total += score
		idx := firstDeclared[cat]
		if score > winning || (score == winning && (winnerIdx == -1 || idx < winnerIdx)) {
			winner, winning, winnerIdx = cat, score, idx
		}
	}
	if winnerIdx == -1 {
		return Unclassified, 0, 0
	}
	return winner, winning, total
}

// winningLabels collects label templates from the winning category's
// rules that matched this event, in declaration order. A non-matching
// rule contributes nothing even when its category wins.
func (e *Engine) winningLabels(winner Category, matchedRules map[int]bool) []string {
	var labels []string
	for i, rule := range e.rules {
		if rule.category == winner && matchedRules[i] {
			labels = append(labels, rule.labels...)
		}
	}
	return labels
}

func dedupeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
