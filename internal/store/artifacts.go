package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ComponentSummary returns a run's explained variance table in component order.
func (s *SQLiteStore) ComponentSummary(ctx context.Context, runID string) ([]ComponentStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, variance, fraction FROM components
		 WHERE run_id = ?
		 ORDER BY ordinal ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying components for run %s: %w", runID, err)
	}
	defer rows.Close()

	stats := make([]ComponentStat, 0, 16)
	for rows.Next() {
		var c ComponentStat
		if err := rows.Scan(&c.Ordinal, &c.Variance, &c.Fraction); err != nil {
			return nil, fmt.Errorf("scanning component row: %w", err)
		}
		stats = append(stats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating components: %w", err)
	}
	return stats, nil
}

// RunLoadings returns every loading for a run, grouped by component with
// the strongest weights first.
func (s *SQLiteStore) RunLoadings(ctx context.Context, runID string) ([]Loading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, tag, weight FROM loadings
		 WHERE run_id = ?
		 ORDER BY ordinal ASC, ABS(weight) DESC, tag ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying loadings for run %s: %w", runID, err)
	}
	defer rows.Close()

	loadings := make([]Loading, 0, 256)
	for rows.Next() {
		var l Loading
		if err := rows.Scan(&l.Ordinal, &l.Tag, &l.Weight); err != nil {
			return nil, fmt.Errorf("scanning loading row: %w", err)
		}
		loadings = append(loadings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating loadings: %w", err)
	}
	return loadings, nil
}

// TopLoadings returns the strongest tag weights on one component,
// ranked by absolute weight.
func (s *SQLiteStore) TopLoadings(ctx context.Context, runID string, ordinal, limit int) ([]Loading, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, tag, weight FROM loadings
		 WHERE run_id = ? AND ordinal = ?
		 ORDER BY ABS(weight) DESC, tag ASC
		 LIMIT ?`,
		runID, ordinal, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top loadings for component %d: %w", ordinal, err)
	}
	defer rows.Close()

	loadings := make([]Loading, 0, limit)
	for rows.Next() {
		var l Loading
		if err := rows.Scan(&l.Ordinal, &l.Tag, &l.Weight); err != nil {
			return nil, fmt.Errorf("scanning top loading row: %w", err)
		}
		loadings = append(loadings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top loadings: %w", err)
	}
	return loadings, nil
}

// ScoreMatrix reassembles a run's component scores as one row per talk.
// Rows follow ascending talk id; columns follow component ordinal.
func (s *SQLiteStore) ScoreMatrix(ctx context.Context, runID string) ([]int64, [][]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT talk_id, ordinal, value FROM scores
		 WHERE run_id = ?
		 ORDER BY talk_id ASC, ordinal ASC`,
		runID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying scores for run %s: %w", runID, err)
	}
	defer rows.Close()

	talkIDs := make([]int64, 0, 256)
	matrix := make([][]float64, 0, 256)
	for rows.Next() {
		var talkID int64
		var ordinal int
		var value float64
		if err := rows.Scan(&talkID, &ordinal, &value); err != nil {
			return nil, nil, fmt.Errorf("scanning score row: %w", err)
		}
		if len(talkIDs) == 0 || talkIDs[len(talkIDs)-1] != talkID {
			talkIDs = append(talkIDs, talkID)
			matrix = append(matrix, make([]float64, 0, 16))
		}
		matrix[len(matrix)-1] = append(matrix[len(matrix)-1], value)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating scores: %w", err)
	}
	return talkIDs, matrix, nil
}

// SaveMapPoints replaces a run's 2D projection. Re-running a projection
// overwrites the previous one.
func (s *SQLiteStore) SaveMapPoints(ctx context.Context, runID string, points []MapPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning map points transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM map_points WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing map points for run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO map_points (run_id, talk_id, x, y) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing map point insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, runID, p.TalkID, p.X, p.Y); err != nil {
			return fmt.Errorf("inserting map point for talk %d: %w", p.TalkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing map points: %w", err)
	}
	return nil
}

// MapPoints returns a run's 2D projection in talk order.
func (s *SQLiteStore) MapPoints(ctx context.Context, runID string) ([]MapPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT talk_id, x, y FROM map_points
		 WHERE run_id = ?
		 ORDER BY talk_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying map points for run %s: %w", runID, err)
	}
	defer rows.Close()

	points := make([]MapPoint, 0, 256)
	for rows.Next() {
		var p MapPoint
		if err := rows.Scan(&p.TalkID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scanning map point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating map points: %w", err)
	}
	return points, nil
}

// SaveTopics replaces a run's topic model. Re-fitting overwrites the
// previous topics and weights together.
func (s *SQLiteStore) SaveTopics(ctx context.Context, runID string, topics []Topic, weights []TopicWeight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning topics transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_weights WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing topic weights for run %s: %w", runID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing topics for run %s: %w", runID, err)
	}

	topicStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO topics (run_id, ordinal, terms) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing topic insert: %w", err)
	}
	defer topicStmt.Close()

	for _, topic := range topics {
		termsJSON, err := json.Marshal(topic.Terms)
		if err != nil {
			return fmt.Errorf("encoding terms for topic %d: %w", topic.Ordinal, err)
		}
		if _, err := topicStmt.ExecContext(ctx, runID, topic.Ordinal, string(termsJSON)); err != nil {
			return fmt.Errorf("inserting topic %d: %w", topic.Ordinal, err)
		}
	}

	weightStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO topic_weights (run_id, talk_id, topic, weight) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing topic weight insert: %w", err)
	}
	defer weightStmt.Close()

	for _, w := range weights {
		if _, err := weightStmt.ExecContext(ctx, runID, w.TalkID, w.Topic, w.Weight); err != nil {
			return fmt.Errorf("inserting weight for talk %d topic %d: %w", w.TalkID, w.Topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing topics: %w", err)
	}
	return nil
}

// TopicSummary returns a run's topics in ordinal order.
func (s *SQLiteStore) TopicSummary(ctx context.Context, runID string) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, terms FROM topics
		 WHERE run_id = ?
		 ORDER BY ordinal ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying topics for run %s: %w", runID, err)
	}
	defer rows.Close()

	topics := make([]Topic, 0, 16)
	for rows.Next() {
		var topic Topic
		var termsRaw string
		if err := rows.Scan(&topic.Ordinal, &termsRaw); err != nil {
			return nil, fmt.Errorf("scanning topic row: %w", err)
		}
		topic.Terms = parseTagsJSON(termsRaw)
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}

// TopicTopTalks returns the talks most strongly weighted on one topic.
func (s *SQLiteStore) TopicTopTalks(ctx context.Context, runID string, topic, limit int) ([]TalkWeight, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.url, t.title, t.tag_count, t.created_at, w.weight
		 FROM topic_weights w
		 JOIN talks t ON t.id = w.talk_id
		 WHERE w.run_id = ? AND w.topic = ?
		 ORDER BY w.weight DESC, t.id ASC
		 LIMIT ?`,
		runID, topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top talks for topic %d: %w", topic, err)
	}
	defer rows.Close()

	weights := make([]TalkWeight, 0, limit)
	for rows.Next() {
		var tw TalkWeight
		if err := rows.Scan(&tw.Talk.ID, &tw.Talk.URL, &tw.Talk.Title,
			&tw.Talk.TagCount, &tw.Talk.CreatedAt, &tw.Weight); err != nil {
			return nil, fmt.Errorf("scanning topic talk row: %w", err)
		}
		weights = append(weights, tw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic talks: %w", err)
	}
	return weights, nil
}
