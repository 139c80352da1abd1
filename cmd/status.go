package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked repositories and pipeline totals",
	Long: `Display an overview of tracked repositories: latest health score,
open issue counts, processed event outcomes, contributor counts, and
database size.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	snaps, err := c.Store.LatestSnapshots()
	if err != nil {
		return fmt.Errorf("querying snapshots: %w", err)
	}

	if len(snaps) == 0 {
		fmt.Println("No repositories tracked yet.")
		fmt.Println("Run 'repopulse serve' and point a GitHub webhook at /webhook to get started.")
		return nil
	}

	contributors, err := c.Store.Contributors()
	if err != nil {
		return fmt.Errorf("querying contributors: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tSCORE\tGRADE\tOPEN\tACCEPTED\tREJECTED\tCONTRIBUTORS\tLAST EVENT")
	fmt.Fprintln(w, "----------\t-----\t-----\t----\t--------\t--------\t------------\t----------")

	for _, snap := range snaps {
		counts, err := c.Store.OutcomeCounts(snap.Repo)
		if err != nil {
			return fmt.Errorf("querying outcomes for %s: %w", snap.Repo, err)
		}

		fmt.Fprintf(w, "%s\t%.1f\t%s\t%d\t%d\t%d\t%d\t%s\n",
			snap.Repo, snap.Score, snap.Grade(), snap.OpenIssueCount,
			counts["accepted"], counts["rejected"],
			len(contributors[snap.Repo]), formatTimeAgo(snap.AsOf))
	}
	w.Flush()

	fmt.Println()
	dbSize, err := dbFileSize(cfg.Store.Path)
	if err != nil {
		fmt.Printf("Database: %s (size unknown)\n", cfg.Store.Path)
	} else {
		fmt.Printf("Database: %s (%s)\n", cfg.Store.Path, formatBytes(dbSize))
	}

	return nil
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return 0, err
		}
		path = home + path[1:]
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
