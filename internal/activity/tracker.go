// Package activity maintains per-contributor event counters and
// time-bucketed activity for heatmap and trend queries.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/jacklau/repopulse/internal/event"
)

// dayFormat keys activity buckets by UTC day.
const dayFormat = "2006-01-02"

// Bucket is one day of activity for a contributor.
type Bucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Stats is the activity record for one (repo, actor) pair. Buckets are
// ordered by day and pruned beyond the retention window.
type Stats struct {
	Actor        string         `json:"actor"`
	EventCounts  map[string]int `json:"event_counts"`
	Buckets      []Bucket       `json:"buckets"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// clone returns a deep copy so callers never alias tracker-owned state.
func (s *Stats) clone() Stats {
	out := Stats{
		Actor:        s.Actor,
		EventCounts:  make(map[string]int, len(s.EventCounts)),
		Buckets:      make([]Bucket, len(s.Buckets)),
		LastActiveAt: s.LastActiveAt,
	}
	for k, v := range s.EventCounts {
		out.EventCounts[k] = v
	}
	copy(out.Buckets, s.Buckets)
	return out
}

// actorState serializes writes for one (repo, actor) pair. Different
// actors write concurrently without contending on each other.
type actorState struct {
	mu    sync.Mutex
	stats Stats
}

type repoActors struct {
	mu     sync.RWMutex
	actors map[string]*actorState
}

// Tracker records contributor activity with a bounded retention window.
type Tracker struct {
	retention time.Duration

	mu    sync.RWMutex
	repos map[string]*repoActors
}

// NewTracker creates a Tracker retaining the given number of days of
// day-bucketed activity.
func NewTracker(retentionDays int) *Tracker {
	if retentionDays < 1 {
		retentionDays = 90
	}
	return &Tracker{
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		repos:     make(map[string]*repoActors),
	}
}

func (t *Tracker) actor(repo, actor string) *actorState {
	t.mu.RLock()
	ra := t.repos[repo]
	t.mu.RUnlock()
	if ra == nil {
		t.mu.Lock()
		if ra = t.repos[repo]; ra == nil {
			ra = &repoActors{actors: make(map[string]*actorState)}
			t.repos[repo] = ra
		}
		t.mu.Unlock()
	}

	ra.mu.RLock()
	as := ra.actors[actor]
	ra.mu.RUnlock()
	if as != nil {
		return as
	}

	ra.mu.Lock()
	defer ra.mu.Unlock()
	if as = ra.actors[actor]; as == nil {
		as = &actorState{stats: Stats{Actor: actor, EventCounts: make(map[string]int)}}
		ra.actors[actor] = as
	}
	return as
}

// Record increments the event-kind counter and the event-day bucket for
// the actor, pruning buckets past the retention window on the way.
func (t *Tracker) Record(ev event.Event) {
	as := t.actor(ev.Repo, ev.Actor)

	as.mu.Lock()
	defer as.mu.Unlock()

	s := &as.stats
	s.EventCounts[ev.Kind.String()]++
	if ev.Timestamp.After(s.LastActiveAt) {
		s.LastActiveAt = ev.Timestamp
	}

	day := ev.Timestamp.UTC().Format(dayFormat)
	s.Buckets = bump(s.Buckets, day)

	// Amortized pruning: evict buckets older than the retention cutoff
	// on each write rather than in a sweep goroutine.
	cutoff := ev.Timestamp.UTC().Add(-t.retention).Format(dayFormat)
	for len(s.Buckets) > 0 && s.Buckets[0].Day < cutoff {
		s.Buckets = s.Buckets[1:]
	}
}

// bump increments the bucket for day, keeping the slice sorted by day so
// bucket keys stay monotonically non-decreasing. Events may arrive out of
// order, so the matching bucket is looked up from the end.
func bump(buckets []Bucket, day string) []Bucket {
	for i := len(buckets) - 1; i >= 0; i-- {
		switch {
		case buckets[i].Day == day:
			buckets[i].Count++
			return buckets
		case buckets[i].Day < day:
			buckets = append(buckets, Bucket{})
			copy(buckets[i+2:], buckets[i+1:])
			buckets[i+1] = Bucket{Day: day, Count: 1}
			return buckets
		}
	}
	return append([]Bucket{{Day: day, Count: 1}}, buckets...)
}

// Query returns a copy of one contributor's stats, with buckets filtered
// to [from, to] when either bound is non-zero.
func (t *Tracker) Query(repo, actor string, from, to time.Time) (Stats, bool) {
	t.mu.RLock()
	ra := t.repos[repo]
	t.mu.RUnlock()
	if ra == nil {
		return Stats{}, false
	}

	ra.mu.RLock()
	as := ra.actors[actor]
	ra.mu.RUnlock()
	if as == nil {
		return Stats{}, false
	}

	as.mu.Lock()
	s := as.stats.clone()
	as.mu.Unlock()

	s.Buckets = filterRange(s.Buckets, from, to)
	return s, true
}

// QueryAll returns stats for every contributor in a repo, keyed by actor.
func (t *Tracker) QueryAll(repo string, from, to time.Time) map[string]Stats {
	t.mu.RLock()
	ra := t.repos[repo]
	t.mu.RUnlock()
	if ra == nil {
		return nil
	}

	ra.mu.RLock()
	names := make([]string, 0, len(ra.actors))
	for name := range ra.actors {
		names = append(names, name)
	}
	ra.mu.RUnlock()

	out := make(map[string]Stats, len(names))
	for _, name := range names {
		if s, ok := t.Query(repo, name, from, to); ok {
			out[name] = s
		}
	}
	return out
}

// Repos lists every repo with recorded activity, sorted.
func (t *Tracker) Repos() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.repos))
	for name := range t.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import seeds a contributor's stats from persisted state. Intended for
// hydration on startup, before concurrent writes begin.
func (t *Tracker) Import(repo string, s Stats) {
	as := t.actor(repo, s.Actor)
	as.mu.Lock()
	defer as.mu.Unlock()
	as.stats = s.clone()
	if as.stats.EventCounts == nil {
		as.stats.EventCounts = make(map[string]int)
	}
}

func filterRange(buckets []Bucket, from, to time.Time) []Bucket {
	if from.IsZero() && to.IsZero() {
		return buckets
	}
	var out []Bucket
	for _, b := range buckets {
		if !from.IsZero() && b.Day < from.UTC().Format(dayFormat) {
			continue
		}
		if !to.IsZero() && b.Day > to.UTC().Format(dayFormat) {
			continue
		}
		out = append(out, b)
	}
	return out
}
