package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jacklau/repopulse/internal/event"
)

// maxComponentLabels caps how many component labels one event can produce.
const maxComponentLabels = 3

// priorityOrder is the tier evaluation order: the first tier with a
// keyword hit wins. "medium" is the implicit default and produces no label.
var priorityOrder = []string{"critical", "high", "low"}

type priorityTier struct {
	name  string
	terms []*regexp.Regexp
}

func compilePriorities(tiers map[string][]string) []priorityTier {
	var out []priorityTier
	for _, name := range priorityOrder {
		terms := tiers[name]
		if len(terms) == 0 {
			continue
		}
		tier := priorityTier{name: name}
		for _, t := range terms {
			tier.terms = append(tier.terms, compileTerm(t))
		}
		out = append(out, tier)
	}
	return out
}

// componentPatterns extract component mentions from an issue body:
// backticked file paths, "in <x> module", and "<x> component".
var componentPatterns = []*regexp.Regexp{
	regexp.MustCompile("`([\\w./-]+\\.\\w{1,6})`"),
	regexp.MustCompile(`(?i)in (\w+) module`),
	regexp.MustCompile(`(?i)(\w+) component`),
}

// deriveLabels produces the auxiliary label set for an event: a priority
// label for issues, component labels from the body, and a size label for
// pull requests.
func (e *Engine) deriveLabels(ev event.Event) []string {
	var labels []string

	if ev.Kind.IsIssue() {
		if tier := e.priority(ev.Title + " " + ev.Body); tier != "" {
			labels = append(labels, "priority:"+tier)
		}
		labels = append(labels, components(ev.Body)...)
	}

	if ev.Kind.IsPull() {
		labels = append(labels, "size:"+sizeBucket(ev.Additions+ev.Deletions))
	}

	return labels
}

// priority returns the first tier with any keyword hit, or "" when the
// event falls through to the default (medium) tier.
func (e *Engine) priority(text string) string {
	for _, tier := range e.priorities {
		for _, re := range tier.terms {
			if re.MatchString(text) {
				return tier.name
			}
		}
	}
	return ""
}

// components extracts up to maxComponentLabels component mentions from the
// body, deduplicated and sorted for deterministic output.
func components(body string) []string {
	if body == "" {
		return nil
	}

	seen := make(map[string]bool)
	for _, re := range componentPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			name := strings.ToLower(m[1])
			if name != "" {
				seen[name] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxComponentLabels {
		names = names[:maxComponentLabels]
	}

	labels := make([]string, len(names))
	for i, name := range names {
		labels[i] = fmt.Sprintf("component:%s", name)
	}
	return labels
}

// sizeBucket categorizes a pull request by total changed lines.
func sizeBucket(totalChanges int) string {
	switch {
	case totalChanges < 20:
		return "small"
	case totalChanges < 100:
		return "medium"
	case totalChanges < 500:
		return "large"
	default:
		return "xl"
	}
}
