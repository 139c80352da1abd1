package store

import (
	"fmt"
	"time"

	"github.com/jacklau/repopulse/internal/health"
)

// RecordSnapshot persists one health snapshot. Re-recording the same
// (repo, revision) is a no-op, so replays are harmless.
func (d *DB) RecordSnapshot(snap health.Snapshot) error {
	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO snapshots
			(repo, revision, as_of, open_issues, stale_ratio, median_response_s, merge_rate, closure_rate, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Repo, snap.Revision, snap.AsOf.UTC().Format(time.RFC3339Nano),
		snap.OpenIssueCount, snap.StaleIssueRatio, snap.MedianFirstResponseSeconds,
		snap.MergeRate, snap.ClosureRate, snap.Score,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// LatestSnapshots returns the highest-revision snapshot per repo, for
// seeding the health engine on restart.
func (d *DB) LatestSnapshots() ([]health.Snapshot, error) {
	rows, err := d.db.Query(
		`SELECT repo, revision, as_of, open_issues, stale_ratio, median_response_s, merge_rate, closure_rate, score
		FROM snapshots s
		WHERE revision = (SELECT MAX(revision) FROM snapshots WHERE repo = s.repo)`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// SnapshotHistory returns up to limit snapshots for a repo, oldest first.
func (d *DB) SnapshotHistory(repo string, limit int) ([]health.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT repo, revision, as_of, open_issues, stale_ratio, median_response_s, merge_rate, closure_rate, score
		FROM (
			SELECT * FROM snapshots WHERE repo = ? ORDER BY revision DESC LIMIT ?
		) ORDER BY revision ASC`,
		repo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot history: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSnapshots(rows rowScanner) ([]health.Snapshot, error) {
	var out []health.Snapshot
	for rows.Next() {
		var s health.Snapshot
		var asOf string
		if err := rows.Scan(&s.Repo, &s.Revision, &asOf, &s.OpenIssueCount, &s.StaleIssueRatio,
			&s.MedianFirstResponseSeconds, &s.MergeRate, &s.ClosureRate, &s.Score); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		s.AsOf, _ = time.Parse(time.RFC3339Nano, asOf)
		out = append(out, s)
	}
	return out, rows.Err()
}
