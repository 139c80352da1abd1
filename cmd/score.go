package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var scoreHistory int

var scoreCmd = &cobra.Command{
	Use:   "score <owner/repo>",
	Short: "Show the health score for a repository",
	Long: `Display the latest health snapshot for a repository from the local
store: the composite score, its grade, and the underlying metrics.

Use --history to also print recent score revisions.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().IntVar(&scoreHistory, "history", 0, "number of recent snapshots to list")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	repo := args[0]
	if !strings.Contains(repo, "/") {
		return fmt.Errorf("invalid repo format: expected owner/repo, got %q", repo)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	snap, ok := c.Health.Latest(repo)
	if !ok {
		return fmt.Errorf("no health data for %s; has the pipeline seen events for it?", repo)
	}

	fmt.Printf("%s: %.1f (%s)\n\n", snap.Repo, snap.Score, snap.Grade())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Revision\t%d\n", snap.Revision)
	fmt.Fprintf(w, "As of\t%s\n", snap.AsOf.Format(time.RFC3339))
	fmt.Fprintf(w, "Open issues\t%d\n", snap.OpenIssueCount)
	fmt.Fprintf(w, "Stale ratio\t%.0f%%\n", snap.StaleIssueRatio*100)
	fmt.Fprintf(w, "Median first response\t%s\n", (time.Duration(snap.MedianFirstResponseSeconds) * time.Second).Round(time.Minute))
	fmt.Fprintf(w, "Merge rate\t%.0f%%\n", snap.MergeRate*100)
	fmt.Fprintf(w, "Closure rate\t%.0f%%\n", snap.ClosureRate*100)
	w.Flush()

	if scoreHistory > 0 {
		history, err := c.Store.SnapshotHistory(repo, scoreHistory)
		if err != nil {
			return fmt.Errorf("querying history: %w", err)
		}
		fmt.Println()
		hw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(hw, "REVISION\tSCORE\tGRADE\tAS OF")
		for _, h := range history {
			fmt.Fprintf(hw, "%d\t%.1f\t%s\t%s\n", h.Revision, h.Score, h.Grade(), h.AsOf.Format(time.RFC3339))
		}
		hw.Flush()
	}

	return nil
}
