package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jacklau/repopulse/internal/pipeline"
)

// OutcomeRow is one persisted processing outcome.
type OutcomeRow struct {
	TraceID   string
	EventID   string
	Repo      string
	Status    string
	Reason    string
	Category  string
	CreatedAt time.Time
}

// RecordOutcome appends an outcome to the audit log. Duplicates are not
// recorded; they produced no side effects.
func (d *DB) RecordOutcome(o pipeline.Outcome) error {
	var category, suggested, added, removed string
	if o.Classification != nil {
		category = o.Classification.Category.String()
		suggested = strings.Join(o.Classification.SuggestedLabels, ",")
	}
	if o.ChangeSet != nil {
		added = strings.Join(o.ChangeSet.ToAdd, ",")
		removed = strings.Join(o.ChangeSet.ToRemove, ",")
	}

	var branchErrors string
	if len(o.BranchErrors) > 0 {
		data, err := json.Marshal(o.BranchErrors)
		if err != nil {
			return fmt.Errorf("marshaling branch errors: %w", err)
		}
		branchErrors = string(data)
	}

	_, err := d.db.Exec(
		`INSERT INTO outcomes
			(trace_id, event_id, repo, status, reason, category, suggested_labels, labels_added, labels_removed, branch_errors, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TraceID, o.EventID, o.Repo, o.Status.String(), o.Reason,
		category, suggested, added, removed, branchErrors, o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns the most recent outcomes, newest first. An empty
// repo matches all repos.
func (d *DB) RecentOutcomes(repo string, limit int) ([]OutcomeRow, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT trace_id, event_id, repo, status, reason, category, created_at
		FROM outcomes`
	args := []any{}
	if repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, repo)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var r OutcomeRow
		var createdAt string
		if err := rows.Scan(&r.TraceID, &r.EventID, &r.Repo, &r.Status, &r.Reason, &r.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		r.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutcomeCounts returns the number of persisted outcomes per status for a
// repo. An empty repo matches all repos.
func (d *DB) OutcomeCounts(repo string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM outcomes`
	args := []any{}
	if repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, repo)
	}
	query += ` GROUP BY status`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
