// Package labels diffs the classifier's desired label set against an
// issue's last-known labels and emits the minimal add/remove change set.
// Only labels inside the managed namespace are ever removed; user-applied
// labels are left untouched.
package labels

import (
	"sort"
	"strings"

	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/config"
)

// StaleLabel is applied when an issue's age exceeds the staleness
// threshold used by the health engine.
const StaleLabel = "stale"

// managedPrefixes are label namespaces this system owns outright.
var managedPrefixes = []string{"priority:", "component:", "size:"}

// ChangeSet is the minimal label mutation for one (repo, targetNumber).
// ToAdd and ToRemove are disjoint.
type ChangeSet struct {
	Repo     string
	Number   int
	ToAdd    []string
	ToRemove []string
}

// Empty reports whether the change set is a no-op.
func (c ChangeSet) Empty() bool {
	return len(c.ToAdd) == 0 && len(c.ToRemove) == 0
}

// HealthFlags carries health-derived label inputs into reconciliation.
type HealthFlags struct {
	Stale bool
}

// Reconciler computes label change sets. It is stateless apart from the
// configured managed label names and safe for concurrent use.
type Reconciler struct {
	managedNames map[string]bool
}

// NewReconciler builds a Reconciler whose managed namespace is the union
// of every label template in the rule set, the managed prefixes, and the
// stale label.
func NewReconciler(rules []config.RuleConfig) *Reconciler {
	names := map[string]bool{StaleLabel: true}
	for _, rule := range rules {
		for _, l := range rule.Labels {
			names[l] = true
		}
	}
	return &Reconciler{managedNames: names}
}

// managed reports whether a label belongs to the namespace this system
// is authorized to add and remove.
func (r *Reconciler) managed(label string) bool {
	if r.managedNames[label] {
		return true
	}
	for _, p := range managedPrefixes {
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	return false
}

// Reconcile computes the minimal change set taking existing labels to the
// desired set (suggested ∪ health-derived). Reapplying the result of a
// previous reconciliation yields an empty change set.
func (r *Reconciler) Reconcile(repo string, number int, existing []string, result classify.Result, flags HealthFlags) ChangeSet {
	desired := make(map[string]bool, len(result.SuggestedLabels)+1)
	for _, l := range result.SuggestedLabels {
		desired[l] = true
	}
	if flags.Stale {
		desired[StaleLabel] = true
	}

	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[l] = true
	}

	cs := ChangeSet{Repo: repo, Number: number}
	for l := range desired {
		if !have[l] {
			cs.ToAdd = append(cs.ToAdd, l)
		}
	}
	for l := range have {
		if r.managed(l) && !desired[l] {
			cs.ToRemove = append(cs.ToRemove, l)
		}
	}

	sort.Strings(cs.ToAdd)
	sort.Strings(cs.ToRemove)
	return cs
}
