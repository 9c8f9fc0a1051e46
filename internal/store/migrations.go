package store

import (
	"database/sql"
	"fmt"
	"time"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction, meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		// Imported records
		`CREATE TABLE IF NOT EXISTS talks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			url        TEXT UNIQUE NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			tag_count  INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Long-form (talk, tag) rows in list order
		`CREATE TABLE IF NOT EXISTS tag_assignments (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			talk_id  INTEGER NOT NULL REFERENCES talks(id) ON DELETE CASCADE,
			tag      TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_assignments_talk ON tag_assignments(talk_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_tag ON tag_assignments(tag)`,

		// One row per analysis pass
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			source       TEXT NOT NULL DEFAULT '',
			linkage      TEXT NOT NULL,
			cut_height   REAL NOT NULL,
			components   INTEGER NOT NULL,
			talk_count   INTEGER NOT NULL,
			tag_count    INTEGER NOT NULL,
			dropped_tags TEXT NOT NULL DEFAULT '[]'
		)`,

		// Cluster labelings, kept as independent mappings per variant
		`CREATE TABLE IF NOT EXISTS labelings (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			variant TEXT NOT NULL CHECK(variant IN ('tags','pca')),
			talk_id INTEGER NOT NULL REFERENCES talks(id),
			cluster INTEGER NOT NULL,
			PRIMARY KEY (run_id, variant, talk_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_labelings_cluster ON labelings(run_id, variant, cluster)`,

		// Explained variance per principal component
		`CREATE TABLE IF NOT EXISTS components (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			ordinal  INTEGER NOT NULL,
			variance REAL NOT NULL,
			fraction REAL NOT NULL,
			PRIMARY KEY (run_id, ordinal)
		)`,

		// Tag weights per component
		`CREATE TABLE IF NOT EXISTS loadings (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			tag     TEXT NOT NULL,
			weight  REAL NOT NULL,
			PRIMARY KEY (run_id, ordinal, tag)
		)`,

		// Talk coordinates in component space
		`CREATE TABLE IF NOT EXISTS scores (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			talk_id INTEGER NOT NULL REFERENCES talks(id),
			ordinal INTEGER NOT NULL,
			value   REAL NOT NULL,
			PRIMARY KEY (run_id, talk_id, ordinal)
		)`,

		// 2D projection of the score matrix
		`CREATE TABLE IF NOT EXISTS map_points (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			talk_id INTEGER NOT NULL REFERENCES talks(id),
			x       REAL NOT NULL,
			y       REAL NOT NULL,
			PRIMARY KEY (run_id, talk_id)
		)`,

		// Topic model artifacts
		`CREATE TABLE IF NOT EXISTS topics (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			terms   TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (run_id, ordinal)
		)`,

		`CREATE TABLE IF NOT EXISTS topic_weights (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			talk_id INTEGER NOT NULL REFERENCES talks(id),
			topic   INTEGER NOT NULL,
			weight  REAL NOT NULL,
			PRIMARY KEY (run_id, talk_id, topic)
		)`,

		// Metadata table
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
