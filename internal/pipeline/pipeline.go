// Package pipeline owns the concurrency and idempotency contract of the
// engine: it deduplicates events, fans each normalized event out to the
// health, activity, and classification consumers, and exposes the
// unified query surface used by collaborators.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacklau/repopulse/internal/activity"
	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/dedup"
	"github.com/jacklau/repopulse/internal/event"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/labels"
	"github.com/jacklau/repopulse/internal/notify"
	"github.com/jacklau/repopulse/internal/pubsub"
)

// Labeler applies a label change set against the upstream platform,
// explaining it with the classification that produced it. It must
// acknowledge success; the coordinator only produces the decision.
type Labeler interface {
	Apply(ctx context.Context, cs labels.ChangeSet, result *classify.Result) error
}

// Recorder persists outcomes and snapshots for audit and restart
// hydration. Satisfied by *store.DB.
type Recorder interface {
	RecordOutcome(o Outcome) error
	RecordSnapshot(snap health.Snapshot) error
	RecordContributor(repo string, stats activity.Stats) error
}

// Deps holds the dependencies for the Coordinator.
type Deps struct {
	Classifier *classify.Engine
	Reconciler *labels.Reconciler
	Health     *health.Engine
	Activity   *activity.Tracker
	Window     *dedup.Window

	// Optional collaborators.
	Labeler   Labeler
	Notifier  notify.Notifier
	Recorder  Recorder
	Snapshots *pubsub.Broker[health.Snapshot]
	Outcomes  *pubsub.Broker[Outcome]

	// AlertThreshold triggers a health notification when a repo's score
	// drops below it. Zero disables alerting.
	AlertThreshold float64

	Workers      int
	QueueSize    int
	TickInterval time.Duration

	Logger *slog.Logger
}

// Coordinator is the pipeline coordinator.
type Coordinator struct {
	deps  Deps
	queue chan event.RawPayload

	// repoMu serializes the update branches per repository so events for
	// one repo apply in arrival order while other repos proceed in
	// parallel.
	mu     sync.Mutex
	repoMu map[string]*sync.Mutex
}

// New creates a Coordinator with the given dependencies.
func New(deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = 256
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = time.Hour
	}
	return &Coordinator{
		deps:   deps,
		queue:  make(chan event.RawPayload, deps.QueueSize),
		repoMu: make(map[string]*sync.Mutex),
	}
}

func (c *Coordinator) repoLock(repo string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.repoMu[repo]
	if m == nil {
		m = &sync.Mutex{}
		c.repoMu[repo] = m
	}
	return m
}

// Submit processes one raw payload synchronously and reports the outcome.
// Replays of an event ID inside the dedup window return DuplicateIgnored
// with no side effects; payloads that cannot be normalized are Rejected.
func (c *Coordinator) Submit(ctx context.Context, raw event.RawPayload) Outcome {
	start := time.Now()
	outcome := Outcome{TraceID: uuid.NewString()}

	ev, err := event.Normalize(raw)
	if err != nil {
		outcome.Status = Rejected
		outcome.Reason = err.Error()
		outcome.Duration = time.Since(start)
		c.deps.Logger.Warn("event rejected", "trace", outcome.TraceID, "error", err)
		c.record(&outcome, nil)
		return outcome
	}

	outcome.EventID = ev.ID
	outcome.Repo = ev.Repo

	if c.deps.Window.Seen(ev.ID) {
		outcome.Status = DuplicateIgnored
		outcome.Duration = time.Since(start)
		c.deps.Logger.Debug("duplicate event ignored", "trace", outcome.TraceID, "id", ev.ID, "repo", ev.Repo)
		return outcome
	}

	outcome.Status = Accepted
	c.process(ctx, ev, &outcome)
	outcome.Duration = time.Since(start)

	logger := c.deps.Logger.With("trace", outcome.TraceID, "repo", ev.Repo, "kind", ev.Kind.String())
	if outcome.Failed() {
		logger.Error("event processed with branch failures", "branch_errors", outcome.BranchErrors, "duration", outcome.Duration)
	} else {
		logger.Info("event processed", "duration", outcome.Duration)
	}

	c.record(&outcome, &ev)
	if c.deps.Outcomes != nil {
		c.deps.Outcomes.Publish(outcome)
	}
	return outcome
}

// process fans the event out to the three consumer branches. Each branch
// is an independent failure domain: a panic or error in one is captured
// in the outcome's diagnostics and never aborts its siblings.
func (c *Coordinator) process(ctx context.Context, ev event.Event, outcome *Outcome) {
	lock := c.repoLock(ev.Repo)
	lock.Lock()
	runBranch("health", outcome, func() error {
		snap := c.deps.Health.Update(ev)
		outcome.Snapshot = &snap
		return nil
	})
	runBranch("activity", outcome, func() error {
		c.deps.Activity.Record(ev)
		return nil
	})
	lock.Unlock()

	if outcome.Snapshot != nil {
		c.publishSnapshot(ctx, *outcome.Snapshot)
	}

	if classifiable(ev.Kind) {
		runBranch("classify", outcome, func() error {
			return c.classify(ctx, ev, outcome)
		})
	}
}

// classifiable reports whether the event kind goes through the
// classification branch.
func classifiable(k event.Kind) bool {
	switch k {
	case event.IssueOpened, event.IssueEdited, event.PullOpened:
		return true
	default:
		return false
	}
}

func (c *Coordinator) classify(ctx context.Context, ev event.Event, outcome *Outcome) error {
	result := c.deps.Classifier.Classify(ev)
	outcome.Classification = &result

	flags := labels.HealthFlags{
		Stale: c.deps.Health.IsStale(ev.Repo, ev.TargetNumber, ev.Timestamp),
	}
	cs := c.deps.Reconciler.Reconcile(ev.Repo, ev.TargetNumber, ev.ExistingLabels, result, flags)
	outcome.ChangeSet = &cs

	if !cs.Empty() && c.deps.Labeler != nil {
		// Label application is delegated asynchronously: the core never
		// blocks on network I/O. Retries and acknowledgement are the
		// labeler's responsibility.
		go func() {
			if err := c.deps.Labeler.Apply(context.WithoutCancel(ctx), cs, &result); err != nil {
				c.deps.Logger.Error("label application failed", "repo", cs.Repo, "number", cs.Number, "error", err)
			}
		}()
	}

	if c.deps.Notifier != nil && result.Category != classify.Unclassified {
		n := notify.Notification{
			Kind:       notify.KindTriage,
			Repo:       ev.Repo,
			Number:     ev.TargetNumber,
			Title:      ev.Title,
			Category:   result.Category.String(),
			Labels:     result.SuggestedLabels,
			Confidence: result.Confidence,
		}
		go func() {
			if err := c.deps.Notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
				c.deps.Logger.Warn("triage notification failed", "repo", ev.Repo, "error", err)
			}
		}()
	}

	return nil
}

func (c *Coordinator) publishSnapshot(ctx context.Context, snap health.Snapshot) {
	if c.deps.Snapshots != nil {
		c.deps.Snapshots.Publish(snap)
	}
	if c.deps.Notifier != nil && c.deps.AlertThreshold > 0 && snap.Score < c.deps.AlertThreshold {
		n := notify.Notification{
			Kind:  notify.KindHealth,
			Repo:  snap.Repo,
			Score: snap.Score,
			Grade: snap.Grade(),
		}
		go func() {
			if err := c.deps.Notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
				c.deps.Logger.Warn("health notification failed", "repo", snap.Repo, "error", err)
			}
		}()
	}
}

// record persists the outcome and the state it produced; persistence
// failures are diagnostics, not processing failures.
func (c *Coordinator) record(outcome *Outcome, ev *event.Event) {
	if c.deps.Recorder == nil {
		return
	}
	runBranch("persist", outcome, func() error {
		if err := c.deps.Recorder.RecordOutcome(*outcome); err != nil {
			return err
		}
		if outcome.Snapshot != nil {
			if err := c.deps.Recorder.RecordSnapshot(*outcome.Snapshot); err != nil {
				return err
			}
		}
		if ev != nil {
			if stats, ok := c.deps.Activity.Query(ev.Repo, ev.Actor, time.Time{}, time.Time{}); ok {
				return c.deps.Recorder.RecordContributor(ev.Repo, stats)
			}
		}
		return nil
	})
}

// runBranch executes one consumer branch, converting errors and panics
// into per-branch diagnostics on the outcome.
func runBranch(name string, outcome *Outcome, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			setBranchError(outcome, name, fmt.Sprintf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		setBranchError(outcome, name, err.Error())
	}
}

func setBranchError(outcome *Outcome, branch, msg string) {
	if outcome.BranchErrors == nil {
		outcome.BranchErrors = make(map[string]string)
	}
	outcome.BranchErrors[branch] = msg
}

// Enqueue hands a raw payload to the worker pool. It returns false when
// the queue is full, so the transport can shed load explicitly rather
// than block.
func (c *Coordinator) Enqueue(raw event.RawPayload) bool {
	select {
	case c.queue <- raw:
		return true
	default:
		return false
	}
}

// Run starts the worker pool and the periodic health tick, blocking until
// the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < c.deps.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case raw := <-c.queue:
					c.Submit(ctx, raw)
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(c.deps.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				for _, snap := range c.deps.Health.TickAll(now.UTC()) {
					c.publishSnapshot(ctx, snap)
					if c.deps.Recorder != nil {
						if err := c.deps.Recorder.RecordSnapshot(snap); err != nil {
							c.deps.Logger.Error("persisting tick snapshot failed", "repo", snap.Repo, "error", err)
						}
					}
				}
			}
		}
	})

	c.deps.Logger.Info("pipeline started", "workers", c.deps.Workers, "tick", c.deps.TickInterval.String())
	err := g.Wait()
	c.deps.Logger.Info("pipeline shutting down", "reason", err)
	return err
}
