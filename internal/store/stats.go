package store

import (
	"context"
	"fmt"
)

// Stats returns observability statistics about the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM talks", &stats.TalkCount},
		{"SELECT COUNT(*) FROM tag_assignments", &stats.AssignmentCount},
		{"SELECT COUNT(DISTINCT tag) FROM tag_assignments", &stats.DistinctTags},
		{"SELECT COUNT(*) FROM runs", &stats.RunCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	// Get DB size (only works for file-based DBs)
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}
