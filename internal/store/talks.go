package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copperline/tagmap/internal/dataset"
	"github.com/copperline/tagmap/internal/tags"
)

// ImportTalks inserts talks and their parsed tag assignments in one
// transaction. Talks are deduplicated by URL: a URL that already exists
// is skipped entirely, assignments included.
func (s *SQLiteStore) ImportTalks(ctx context.Context, talks []dataset.Talk) (*ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	talkStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO talks (url, title, tag_count, created_at)
		 VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("preparing talk insert: %w", err)
	}
	defer talkStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tag_assignments (talk_id, tag, position) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("preparing assignment insert: %w", err)
	}
	defer tagStmt.Close()

	now := time.Now().UTC()
	result := &ImportResult{}

	for _, talk := range talks {
		url := strings.TrimSpace(talk.URL)
		if url == "" {
			result.Skipped++
			continue
		}

		parsed := tags.ParseList(talk.RawTags)

		res, err := talkStmt.ExecContext(ctx, url, talk.Title, len(parsed), now)
		if err != nil {
			return nil, fmt.Errorf("inserting talk %q: %w", url, err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking talk insert: %w", err)
		}
		if inserted == 0 {
			result.Skipped++
			continue
		}

		talkID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading talk insert id: %w", err)
		}

		for pos, tag := range parsed {
			if _, err := tagStmt.ExecContext(ctx, talkID, tag, pos); err != nil {
				return nil, fmt.Errorf("inserting assignment %q for talk %q: %w", tag, url, err)
			}
			result.Assignments++
		}
		result.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	return result, nil
}

// ListTalks returns all talks in import order.
func (s *SQLiteStore) ListTalks(ctx context.Context) ([]Talk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, tag_count, created_at FROM talks ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing talks: %w", err)
	}
	defer rows.Close()

	talks := make([]Talk, 0, 256)
	for rows.Next() {
		var t Talk
		if err := rows.Scan(&t.ID, &t.URL, &t.Title, &t.TagCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning talk row: %w", err)
		}
		talks = append(talks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating talks: %w", err)
	}
	return talks, nil
}

// FindTalks searches talks by URL, title, or tag substring (case-insensitive
// for ASCII, per SQLite LIKE semantics).
func (s *SQLiteStore) FindTalks(ctx context.Context, query string, limit int) ([]Talk, error) {
	needle := strings.TrimSpace(query)
	if needle == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}

	pattern := "%" + needle + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT t.id, t.url, t.title, t.tag_count, t.created_at
		 FROM talks t
		 LEFT JOIN tag_assignments a ON a.talk_id = t.id
		 WHERE t.url LIKE ? OR t.title LIKE ? OR a.tag LIKE ?
		 ORDER BY t.id ASC
		 LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding talks %q: %w", needle, err)
	}
	defer rows.Close()

	talks := make([]Talk, 0, limit)
	for rows.Next() {
		var t Talk
		if err := rows.Scan(&t.ID, &t.URL, &t.Title, &t.TagCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning found talk: %w", err)
		}
		talks = append(talks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating found talks: %w", err)
	}
	return talks, nil
}

// AssignmentsByTalk returns every talk's tags in list order.
func (s *SQLiteStore) AssignmentsByTalk(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT talk_id, tag FROM tag_assignments ORDER BY talk_id ASC, position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	byTalk := make(map[int64][]string)
	for rows.Next() {
		var talkID int64
		var tag string
		if err := rows.Scan(&talkID, &tag); err != nil {
			return nil, fmt.Errorf("scanning assignment row: %w", err)
		}
		byTalk[talkID] = append(byTalk[talkID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return byTalk, nil
}

// TopTags returns the most frequently assigned tags, most common first,
// ties broken alphabetically.
func (s *SQLiteStore) TopTags(ctx context.Context, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, COUNT(*) AS cnt
		 FROM tag_assignments
		 GROUP BY tag
		 ORDER BY cnt DESC, tag ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top tags: %w", err)
	}
	defer rows.Close()

	counts := make([]TagCount, 0, limit)
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scanning tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag counts: %w", err)
	}
	return counts, nil
}

// AllAssignments returns the long-form (talk, tag) rows in import order.
func (s *SQLiteStore) AllAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.talk_id, t.url, a.tag, a.position
		 FROM tag_assignments a
		 JOIN talks t ON t.id = a.talk_id
		 ORDER BY a.talk_id ASC, a.position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying all assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]Assignment, 0, 1024)
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.TalkID, &a.URL, &a.Tag, &a.Position); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating all assignments: %w", err)
	}
	return assignments, nil
}
