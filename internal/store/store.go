// Package store provides the SQLite persistence layer for tagmap.
//
// All analysis data lives in a single SQLite database file, including:
// - Imported talks and their long-form tag assignments
// - Analysis runs with cluster labelings for both variants
// - Principal component variances, loadings, and scores
// - Optional topic models and 2D map projections
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/copperline/tagmap/internal/dataset"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.tagmap/tagmap.db"

// Labeling variants. Every analysis run stores one labeling per variant:
// one cut from the raw tag-space dendrogram, one from the PCA-score dendrogram.
const (
	VariantTags = "tags"
	VariantPCA  = "pca"
)

// Talk represents a single imported record.
type Talk struct {
	ID        int64
	URL       string
	Title     string
	TagCount  int
	CreatedAt time.Time
}

// Assignment is one (talk, tag) pair in list order.
type Assignment struct {
	TalkID   int64
	URL      string
	Tag      string
	Position int
}

// Run is one persisted analysis pass over the imported talks.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Source      string
	Linkage     string
	CutHeight   float64
	Components  int
	TalkCount   int
	TagCount    int
	DroppedTags []string
}

// Label assigns one talk to a cluster under a labeling variant.
type Label struct {
	Variant string
	TalkID  int64
	Cluster int
}

// ComponentStat is the explained variance of one principal component.
type ComponentStat struct {
	Ordinal  int
	Variance float64
	Fraction float64
}

// Loading is one tag's weight on one principal component.
type Loading struct {
	Ordinal int
	Tag     string
	Weight  float64
}

// Score is one talk's coordinate on one principal component.
type Score struct {
	TalkID  int64
	Ordinal int
	Value   float64
}

// MapPoint is one talk's 2D embedding coordinate.
type MapPoint struct {
	TalkID int64
	X      float64
	Y      float64
}

// Topic is one fitted topic with its top terms.
type Topic struct {
	Ordinal int
	Terms   []string
}

// TopicWeight is one talk's weight on one topic.
type TopicWeight struct {
	TalkID int64
	Topic  int
	Weight float64
}

// TagCount pairs a tag with its occurrence count.
type TagCount struct {
	Tag   string
	Count int
}

// ClusterStat summarizes one cluster in a labeling.
type ClusterStat struct {
	Cluster int
	Size    int
}

// TalkWeight pairs a talk with a topic weight.
type TalkWeight struct {
	Talk   Talk
	Weight float64
}

// RunSnapshot bundles a run row with every artifact SaveRun persists
// in a single transaction.
type RunSnapshot struct {
	Run        Run
	Labels     []Label
	Components []ComponentStat
	Loadings   []Loading
	Scores     []Score
}

// ImportResult summarizes an import pass.
type ImportResult struct {
	Imported    int
	Skipped     int
	Assignments int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	TalkCount       int64
	AssignmentCount int64
	DistinctTags    int64
	RunCount        int64
	DBSizeBytes     int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the core storage interface.
type Store interface {
	// Talks
	ImportTalks(ctx context.Context, talks []dataset.Talk) (*ImportResult, error)
	ListTalks(ctx context.Context) ([]Talk, error)
	FindTalks(ctx context.Context, query string, limit int) ([]Talk, error)
	AssignmentsByTalk(ctx context.Context) (map[int64][]string, error)
	AllAssignments(ctx context.Context) ([]Assignment, error)
	TopTags(ctx context.Context, limit int) ([]TagCount, error)

	// Runs
	SaveRun(ctx context.Context, snap *RunSnapshot) error
	LatestRun(ctx context.Context) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	FindRun(ctx context.Context, idOrPrefix string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Labelings
	Labeling(ctx context.Context, runID, variant string) (map[int64]int, error)
	ClusterSizes(ctx context.Context, runID, variant string) ([]ClusterStat, error)
	ClusterMembers(ctx context.Context, runID, variant string, cluster, limit int) ([]Talk, error)
	ClusterTopTags(ctx context.Context, runID, variant string, cluster, limit int) ([]TagCount, error)

	// Component artifacts
	ComponentSummary(ctx context.Context, runID string) ([]ComponentStat, error)
	RunLoadings(ctx context.Context, runID string) ([]Loading, error)
	TopLoadings(ctx context.Context, runID string, ordinal, limit int) ([]Loading, error)
	ScoreMatrix(ctx context.Context, runID string) ([]int64, [][]float64, error)

	// Map projection + topics
	SaveMapPoints(ctx context.Context, runID string, points []MapPoint) error
	MapPoints(ctx context.Context, runID string) ([]MapPoint, error)
	SaveTopics(ctx context.Context, runID string, topics []Topic, weights []TopicWeight) error
	TopicSummary(ctx context.Context, runID string) ([]Topic, error)
	TopicTopTalks(ctx context.Context, runID string, topic, limit int) ([]TalkWeight, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
