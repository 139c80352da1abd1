// Package health maintains rolling per-repository metrics and computes a
// composite 0–100 health score on each relevant event and on a periodic
// tick. All state is process-resident; durability belongs to the store.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/event"
)

// Params holds the resolved scoring configuration.
type Params struct {
	Weights            config.WeightsConfig
	StalenessThreshold time.Duration
	Window             time.Duration
	ResponseTarget     time.Duration
	History            int
}

type issueRecord struct {
	author        string
	openedAt      time.Time
	lastTouched   time.Time
	closedAt      time.Time // zero while open
	responded     bool
	firstResponse time.Duration
}

type prOutcome int

const (
	prMerged prOutcome = iota
	prClosed
)

type prRecord struct {
	outcome   prOutcome
	decidedAt time.Time
}

// repoState is one repository's rolling window. Its mutex is the
// per-repository critical section: updates for the same repo serialize on
// it while different repos proceed fully in parallel.
type repoState struct {
	mu       sync.Mutex
	issues   map[int]*issueRecord
	prs      map[int]*prRecord
	revision uint64
	history  []Snapshot
}

// Engine is the health scoring engine.
type Engine struct {
	params Params

	mu    sync.RWMutex
	repos map[string]*repoState
}

// NewEngine creates an Engine with the given parameters.
func NewEngine(params Params) *Engine {
	if params.History <= 0 {
		params.History = 50
	}
	return &Engine{
		params: params,
		repos:  make(map[string]*repoState),
	}
}

func (e *Engine) repo(name string) *repoState {
	e.mu.RLock()
	rs := e.repos[name]
	e.mu.RUnlock()
	if rs != nil {
		return rs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rs = e.repos[name]; rs == nil {
		rs = &repoState{
			issues: make(map[int]*issueRecord),
			prs:    make(map[int]*prRecord),
		}
		e.repos[name] = rs
	}
	return rs
}

// Update folds one event into the repo's rolling window and returns the
// freshly computed snapshot.
func (e *Engine) Update(ev event.Event) Snapshot {
	rs := e.repo(ev.Repo)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.apply(ev)
	return rs.recompute(ev.Repo, ev.Timestamp, e.params)
}

// Tick recomputes a repo's snapshot at the given instant without a new
// event, so stale-dependent metrics decay even with no activity. Because
// recomputation happens under the same per-repo lock as Update and the
// revision is incremented there, an older Tick can never overwrite a
// snapshot produced by a newer Update.
func (e *Engine) Tick(repo string, now time.Time) Snapshot {
	rs := e.repo(repo)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.recompute(repo, now, e.params)
}

// TickAll recomputes snapshots for every tracked repo.
func (e *Engine) TickAll(now time.Time) []Snapshot {
	e.mu.RLock()
	names := make([]string, 0, len(e.repos))
	for name := range e.repos {
		names = append(names, name)
	}
	e.mu.RUnlock()

	sort.Strings(names)
	snaps := make([]Snapshot, 0, len(names))
	for _, name := range names {
		snaps = append(snaps, e.Tick(name, now))
	}
	return snaps
}

// Latest returns the most recent snapshot for a repo, if any.
func (e *Engine) Latest(repo string) (Snapshot, bool) {
	e.mu.RLock()
	rs := e.repos[repo]
	e.mu.RUnlock()
	if rs == nil {
		return Snapshot{}, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.history) == 0 {
		return Snapshot{}, false
	}
	return rs.history[len(rs.history)-1], true
}

// History returns the retained snapshots for a repo, oldest first.
func (e *Engine) History(repo string) []Snapshot {
	e.mu.RLock()
	rs := e.repos[repo]
	e.mu.RUnlock()
	if rs == nil {
		return nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Snapshot, len(rs.history))
	copy(out, rs.history)
	return out
}

// Repos lists every tracked repository, sorted.
func (e *Engine) Repos() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.repos))
	for name := range e.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsStale reports whether a tracked open issue has been untouched past
// the staleness threshold.
func (e *Engine) IsStale(repo string, number int, now time.Time) bool {
	e.mu.RLock()
	rs := e.repos[repo]
	e.mu.RUnlock()
	if rs == nil {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rec := rs.issues[number]
	if rec == nil || !rec.closedAt.IsZero() {
		return false
	}
	return now.Sub(rec.lastTouched) > e.params.StalenessThreshold
}

// Seed restores a persisted snapshot so revisions stay monotonic across
// restarts. It only applies snapshots newer than the current one.
func (e *Engine) Seed(snap Snapshot) {
	rs := e.repo(snap.Repo)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if snap.Revision <= rs.revision {
		return
	}
	rs.revision = snap.Revision
	rs.history = append(rs.history, snap)
}

func (rs *repoState) apply(ev event.Event) {
	switch ev.Kind {
	case event.IssueOpened:
		rs.issues[ev.TargetNumber] = &issueRecord{
			author:      ev.Actor,
			openedAt:    ev.Timestamp,
			lastTouched: ev.Timestamp,
		}
	case event.IssueEdited:
		if rec := rs.issues[ev.TargetNumber]; rec != nil {
			rec.touch(ev.Timestamp)
		}
	case event.IssueClosed:
		if rec := rs.issues[ev.TargetNumber]; rec != nil {
			rec.closedAt = ev.Timestamp
			rec.touch(ev.Timestamp)
		}
	case event.Comment:
		rec := rs.issues[ev.TargetNumber]
		if rec == nil {
			return
		}
		rec.touch(ev.Timestamp)
		if !rec.responded && ev.Actor != rec.author {
			latency := ev.Timestamp.Sub(rec.openedAt)
			if latency < 0 {
				latency = 0
			}
			rec.responded = true
			rec.firstResponse = latency
		}
	case event.PullMerged:
		rs.prs[ev.TargetNumber] = &prRecord{outcome: prMerged, decidedAt: ev.Timestamp}
	case event.PullClosed:
		rs.prs[ev.TargetNumber] = &prRecord{outcome: prClosed, decidedAt: ev.Timestamp}
	}
}

func (rec *issueRecord) touch(t time.Time) {
	if t.After(rec.lastTouched) {
		rec.lastTouched = t
	}
}

// recompute prunes records that fell out of the rolling window, derives
// the sub-scores, and appends a new revision to the bounded history.
// Caller holds rs.mu.
func (rs *repoState) recompute(repo string, now time.Time, p Params) Snapshot {
	cutoff := now.Add(-p.Window)
	rs.prune(cutoff)

	var open, stale, closed int
	var latencies []float64
	for _, rec := range rs.issues {
		if rec.closedAt.IsZero() {
			open++
			if now.Sub(rec.lastTouched) > p.StalenessThreshold {
				stale++
			}
		} else {
			closed++
		}
		if rec.responded {
			latencies = append(latencies, rec.firstResponse.Seconds())
		}
	}

	var merged, decided int
	for _, pr := range rs.prs {
		decided++
		if pr.outcome == prMerged {
			merged++
		}
	}

	staleRatio := 0.0
	if open > 0 {
		staleRatio = float64(stale) / float64(open)
	}

	medianResponse := median(latencies)

	// Sub-scores default to 1.0 when there is no data to judge: an empty
	// window must not read as unhealthy.
	mergeRate := 1.0
	if decided > 0 {
		mergeRate = float64(merged) / float64(decided)
	}

	closureRate := 1.0
	if open+closed > 0 {
		closureRate = float64(closed) / float64(open+closed)
	}

	responseScore := 1.0
	if len(latencies) > 0 {
		targetSeconds := p.ResponseTarget.Seconds()
		responseScore = 1.0 / (1.0 + medianResponse/targetSeconds)
	}

	w := p.Weights
	score := 100 * (w.Stale*clamp01(1-staleRatio) +
		w.Merge*clamp01(mergeRate) +
		w.Response*clamp01(responseScore) +
		w.Closure*clamp01(closureRate))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	rs.revision++
	snap := Snapshot{
		Repo:                       repo,
		Revision:                   rs.revision,
		AsOf:                       now,
		OpenIssueCount:             open,
		StaleIssueRatio:            staleRatio,
		MedianFirstResponseSeconds: medianResponse,
		MergeRate:                  mergeRate,
		ClosureRate:                closureRate,
		Score:                      score,
	}

	rs.history = append(rs.history, snap)
	if len(rs.history) > p.History {
		rs.history = rs.history[len(rs.history)-p.History:]
	}
	return snap
}

// prune drops closed issues and decided PRs that fell out of the window.
// Open issues are retained regardless of age: they still count as open.
func (rs *repoState) prune(cutoff time.Time) {
	for n, rec := range rs.issues {
		if !rec.closedAt.IsZero() && rec.closedAt.Before(cutoff) {
			delete(rs.issues, n)
		}
	}
	for n, pr := range rs.prs {
		if pr.decidedAt.Before(cutoff) {
			delete(rs.prs, n)
		}
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
