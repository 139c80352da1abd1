package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jacklau/repopulse/internal/activity"
	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/dedup"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/labels"
	"github.com/jacklau/repopulse/internal/store"
)

// components bundles the core engine pieces shared by the serve, score,
// and status commands.
type components struct {
	Store      *store.DB
	Classifier *classify.Engine
	Reconciler *labels.Reconciler
	Health     *health.Engine
	Activity   *activity.Tracker
	Window     *dedup.Window
}

// initComponents constructs the engine from configuration and hydrates
// the in-memory state from the store.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	classifier, err := classify.NewEngine(cfg.Classification)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building classifier: %w", err)
	}

	params, err := healthParams(cfg.Health)
	if err != nil {
		db.Close()
		return nil, err
	}
	engine := health.NewEngine(params)

	tracker := activity.NewTracker(cfg.Activity.RetentionDays)

	ttl, err := cfg.Dedup.TTL()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parsing dedup ttl: %w", err)
	}

	c := &components{
		Store:      db,
		Classifier: classifier,
		Reconciler: labels.NewReconciler(cfg.Classification.Rules),
		Health:     engine,
		Activity:   tracker,
		Window:     dedup.NewWindow(cfg.Dedup.Capacity, ttl),
	}

	if err := c.hydrate(logger); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// hydrate restores health revisions and contributor counters so
// snapshot numbering stays monotonic across restarts.
func (c *components) hydrate(logger *slog.Logger) error {
	snaps, err := c.Store.LatestSnapshots()
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	for _, snap := range snaps {
		c.Health.Seed(snap)
	}

	contributors, err := c.Store.Contributors()
	if err != nil {
		return fmt.Errorf("loading contributors: %w", err)
	}
	var actors int
	for repo, stats := range contributors {
		for _, s := range stats {
			c.Activity.Import(repo, s)
			actors++
		}
	}

	logger.Debug("state hydrated", "repos", len(snaps), "contributors", actors)
	return nil
}

func healthParams(hc config.HealthConfig) (health.Params, error) {
	staleness, err := hc.StalenessThreshold()
	if err != nil {
		return health.Params{}, fmt.Errorf("parsing staleness threshold: %w", err)
	}
	window, err := hc.Window()
	if err != nil {
		return health.Params{}, fmt.Errorf("parsing health window: %w", err)
	}
	target, err := hc.ResponseTarget()
	if err != nil {
		return health.Params{}, fmt.Errorf("parsing response target: %w", err)
	}
	return health.Params{
		Weights:            hc.Weights,
		StalenessThreshold: staleness,
		Window:             window,
		ResponseTarget:     target,
		History:            hc.History,
	}, nil
}
