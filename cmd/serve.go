package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacklau/repopulse/internal/github"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/notify"
	"github.com/jacklau/repopulse/internal/pipeline"
	"github.com/jacklau/repopulse/internal/pubsub"
	"github.com/jacklau/repopulse/internal/server"
)

var (
	serveAddr   string
	serveDryRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and processing pipeline",
	Long: `Start the HTTP server that receives GitHub webhook deliveries,
classifies incoming issues and pull requests, applies labels, and
streams health snapshots over the API and websocket.

State is hydrated from the local store on startup, so health score
revisions continue from where the previous process left off.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "classify and score but skip label writes and notifications")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	// Label writes need a GitHub client. Without credentials the engine
	// still classifies and scores; the change sets just stay advisory.
	var labeler pipeline.Labeler
	if !serveDryRun && cfg.GitHub.Auth != "" {
		client, err := github.NewClient(cfg.GitHub)
		if err != nil {
			return fmt.Errorf("creating github client: %w", err)
		}
		labeler = github.NewLabeler(client, logger)
	} else {
		logger.Info("label application disabled", "dry_run", serveDryRun)
	}

	var notifier notify.Notifier
	if !serveDryRun {
		notifier = notify.NewNotifier(cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
	}

	tick, err := cfg.Server.WSBroadcastInterval()
	if err != nil {
		return fmt.Errorf("parsing broadcast interval: %w", err)
	}

	snapshots := pubsub.NewBroker[health.Snapshot]()
	outcomes := pubsub.NewBroker[pipeline.Outcome]()

	coordinator := pipeline.New(pipeline.Deps{
		Classifier:     c.Classifier,
		Reconciler:     c.Reconciler,
		Health:         c.Health,
		Activity:       c.Activity,
		Window:         c.Window,
		Labeler:        labeler,
		Notifier:       notifier,
		Recorder:       c.Store,
		Snapshots:      snapshots,
		Outcomes:       outcomes,
		AlertThreshold: cfg.Notify.AlertThreshold(),
		Workers:        cfg.Pipeline.Workers,
		QueueSize:      cfg.Pipeline.Queue,
		TickInterval:   tick,
		Logger:         logger,
	})

	hub := server.NewHub(c.Health, snapshots, logger)

	srv := server.New(server.Deps{
		Pipeline:      coordinator,
		Health:        c.Health,
		Activity:      c.Activity,
		Store:         c.Store,
		Hub:           hub,
		WebhookSecret: cfg.GitHub.WebhookSecret,
		Logger:        logger,
	})

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coordinator.Run(ctx)
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintln(os.Stdout, "shutdown complete")
	return nil
}
