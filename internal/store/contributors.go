package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacklau/repopulse/internal/activity"
)

// RecordContributor upserts one contributor's stats for a repo.
func (d *DB) RecordContributor(repo string, stats activity.Stats) error {
	counts, err := json.Marshal(stats.EventCounts)
	if err != nil {
		return fmt.Errorf("marshaling event counts: %w", err)
	}
	buckets, err := json.Marshal(stats.Buckets)
	if err != nil {
		return fmt.Errorf("marshaling buckets: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO contributors (repo, actor, event_counts, buckets, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo, actor) DO UPDATE SET
			event_counts = excluded.event_counts,
			buckets = excluded.buckets,
			last_active_at = excluded.last_active_at`,
		repo, stats.Actor, string(counts), string(buckets),
		stats.LastActiveAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting contributor: %w", err)
	}
	return nil
}

// Contributors returns all persisted contributor stats keyed by repo, for
// hydrating the activity tracker on restart.
func (d *DB) Contributors() (map[string][]activity.Stats, error) {
	rows, err := d.db.Query(
		`SELECT repo, actor, event_counts, buckets, last_active_at FROM contributors`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contributors: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]activity.Stats)
	for rows.Next() {
		var repo, actor, counts, buckets, lastActive string
		if err := rows.Scan(&repo, &actor, &counts, &buckets, &lastActive); err != nil {
			return nil, fmt.Errorf("scanning contributor: %w", err)
		}

		stats := activity.Stats{Actor: actor}
		if err := json.Unmarshal([]byte(counts), &stats.EventCounts); err != nil {
			return nil, fmt.Errorf("unmarshaling event counts for %s/%s: %w", repo, actor, err)
		}
		if err := json.Unmarshal([]byte(buckets), &stats.Buckets); err != nil {
			return nil, fmt.Errorf("unmarshaling buckets for %s/%s: %w", repo, actor, err)
		}
		stats.LastActiveAt, _ = time.Parse(time.RFC3339Nano, lastActive)
		out[repo] = append(out[repo], stats)
	}
	return out, rows.Err()
}
