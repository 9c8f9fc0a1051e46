package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SaveRun persists a run row and all its artifacts in one transaction.
// A failed save leaves no partial run behind.
func (s *SQLiteStore) SaveRun(ctx context.Context, snap *RunSnapshot) error {
	if snap == nil || snap.Run.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	droppedJSON, err := json.Marshal(snap.Run.DroppedTags)
	if err != nil {
		return fmt.Errorf("encoding dropped tags: %w", err)
	}

	created := snap.Run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, source, linkage, cut_height, components, talk_count, tag_count, dropped_tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Run.ID, created, snap.Run.Source, snap.Run.Linkage, snap.Run.CutHeight,
		snap.Run.Components, snap.Run.TalkCount, snap.Run.TagCount, string(droppedJSON),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", snap.Run.ID, err)
	}

	labelStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO labelings (run_id, variant, talk_id, cluster) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing labeling insert: %w", err)
	}
	defer labelStmt.Close()

	for _, l := range snap.Labels {
		if _, err := labelStmt.ExecContext(ctx, snap.Run.ID, l.Variant, l.TalkID, l.Cluster); err != nil {
			return fmt.Errorf("inserting %s labeling for talk %d: %w", l.Variant, l.TalkID, err)
		}
	}

	compStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO components (run_id, ordinal, variance, fraction) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing component insert: %w", err)
	}
	defer compStmt.Close()

	for _, c := range snap.Components {
		if _, err := compStmt.ExecContext(ctx, snap.Run.ID, c.Ordinal, c.Variance, c.Fraction); err != nil {
			return fmt.Errorf("inserting component %d: %w", c.Ordinal, err)
		}
	}

	loadStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO loadings (run_id, ordinal, tag, weight) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing loading insert: %w", err)
	}
	defer loadStmt.Close()

	for _, l := range snap.Loadings {
		if _, err := loadStmt.ExecContext(ctx, snap.Run.ID, l.Ordinal, l.Tag, l.Weight); err != nil {
			return fmt.Errorf("inserting loading %q on component %d: %w", l.Tag, l.Ordinal, err)
		}
	}

	scoreStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scores (run_id, talk_id, ordinal, value) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing score insert: %w", err)
	}
	defer scoreStmt.Close()

	for _, sc := range snap.Scores {
		if _, err := scoreStmt.ExecContext(ctx, snap.Run.ID, sc.TalkID, sc.Ordinal, sc.Value); err != nil {
			return fmt.Errorf("inserting score for talk %d component %d: %w", sc.TalkID, sc.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", snap.Run.ID, err)
	}
	return nil
}

// LatestRun returns the most recent run, or nil when none exist.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	var r Run
	var droppedRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, linkage, cut_height, components, talk_count, tag_count, dropped_tags
		 FROM runs
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
	).Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Linkage, &r.CutHeight,
		&r.Components, &r.TalkCount, &r.TagCount, &droppedRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}
	r.DroppedTags = parseTagsJSON(droppedRaw)
	return &r, nil
}

// GetRun retrieves a run by exact id. Returns nil if not found.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var droppedRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, linkage, cut_height, components, talk_count, tag_count, dropped_tags
		 FROM runs
		 WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Linkage, &r.CutHeight,
		&r.Components, &r.TalkCount, &r.TagCount, &droppedRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	r.DroppedTags = parseTagsJSON(droppedRaw)
	return &r, nil
}

// FindRun resolves an exact run id or a unique id prefix. An empty
// argument resolves to the latest run.
func (s *SQLiteStore) FindRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	needle := strings.TrimSpace(idOrPrefix)
	if needle == "" {
		return s.LatestRun(ctx)
	}

	run, err := s.GetRun(ctx, needle)
	if err != nil || run != nil {
		return run, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ORDER BY created_at DESC LIMIT 2`,
		needle+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("matching run prefix %q: %w", needle, err)
	}
	defer rows.Close()

	ids := make([]string, 0, 2)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run prefix matches: %w", err)
	}

	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		return s.GetRun(ctx, ids[0])
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", needle)
	}
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, linkage, cut_height, components, talk_count, tag_count, dropped_tags
		 FROM runs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		var droppedRaw string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Linkage, &r.CutHeight,
			&r.Components, &r.TalkCount, &r.TagCount, &droppedRaw); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.DroppedTags = parseTagsJSON(droppedRaw)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Labeling returns the talk-to-cluster mapping for one variant of a run.
func (s *SQLiteStore) Labeling(ctx context.Context, runID, variant string) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT talk_id, cluster FROM labelings
		 WHERE run_id = ? AND variant = ?
		 ORDER BY talk_id ASC`,
		runID, variant,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s labeling for run %s: %w", variant, runID, err)
	}
	defer rows.Close()

	labeling := make(map[int64]int)
	for rows.Next() {
		var talkID int64
		var cluster int
		if err := rows.Scan(&talkID, &cluster); err != nil {
			return nil, fmt.Errorf("scanning labeling row: %w", err)
		}
		labeling[talkID] = cluster
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating labeling: %w", err)
	}
	return labeling, nil
}

// ClusterSizes returns cluster membership counts, largest first.
func (s *SQLiteStore) ClusterSizes(ctx context.Context, runID, variant string) ([]ClusterStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster, COUNT(*) AS size
		 FROM labelings
		 WHERE run_id = ? AND variant = ?
		 GROUP BY cluster
		 ORDER BY size DESC, cluster ASC`,
		runID, variant,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cluster sizes for run %s: %w", runID, err)
	}
	defer rows.Close()

	stats := make([]ClusterStat, 0, 64)
	for rows.Next() {
		var cs ClusterStat
		if err := rows.Scan(&cs.Cluster, &cs.Size); err != nil {
			return nil, fmt.Errorf("scanning cluster size row: %w", err)
		}
		stats = append(stats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cluster sizes: %w", err)
	}
	return stats, nil
}

// ClusterMembers returns all talks assigned to a cluster.
func (s *SQLiteStore) ClusterMembers(ctx context.Context, runID, variant string, cluster, limit int) ([]Talk, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.url, t.title, t.tag_count, t.created_at
		 FROM labelings l
		 JOIN talks t ON t.id = l.talk_id
		 WHERE l.run_id = ? AND l.variant = ? AND l.cluster = ?
		 ORDER BY t.id ASC
		 LIMIT ?`,
		runID, variant, cluster, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members of cluster %d: %w", cluster, err)
	}
	defer rows.Close()

	talks := make([]Talk, 0, limit)
	for rows.Next() {
		var t Talk
		if err := rows.Scan(&t.ID, &t.URL, &t.Title, &t.TagCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cluster member: %w", err)
		}
		talks = append(talks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cluster members: %w", err)
	}
	return talks, nil
}

// ClusterTopTags returns the most frequent tags among a cluster's talks.
func (s *SQLiteStore) ClusterTopTags(ctx context.Context, runID, variant string, cluster, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.tag, COUNT(*) AS cnt
		 FROM labelings l
		 JOIN tag_assignments a ON a.talk_id = l.talk_id
		 WHERE l.run_id = ? AND l.variant = ? AND l.cluster = ?
		 GROUP BY a.tag
		 ORDER BY cnt DESC, a.tag ASC
		 LIMIT ?`,
		runID, variant, cluster, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading top tags for cluster %d: %w", cluster, err)
	}
	defer rows.Close()

	counts := make([]TagCount, 0, limit)
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scanning top tag row: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top tags: %w", err)
	}
	return counts, nil
}

func parseTagsJSON(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make([]string, 0)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
