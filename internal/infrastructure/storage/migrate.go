package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// migrations is an ordered list of schema steps. Index 0 = v0 → v1, etc.
// Every statement must run unchanged on SQLite and Postgres.
var migrations = [][]string{
	// v1: cache
	{
		`CREATE TABLE IF NOT EXISTS cache_records (
			source_type TEXT NOT NULL,
			source_key  TEXT NOT NULL,
			fetched_at  BIGINT NOT NULL,
			PRIMARY KEY (source_type, source_key)
		)`,
		`CREATE TABLE IF NOT EXISTS cached_items (
			source_type   TEXT NOT NULL,
			source_key    TEXT NOT NULL,
			dedup_key     TEXT NOT NULL,
			item_id       TEXT NOT NULL,
			body          TEXT NOT NULL,
			url           TEXT NOT NULL,
			author        TEXT NOT NULL,
			published_at  BIGINT NOT NULL,
			quality_score DOUBLE PRECISION NOT NULL,
			metadata      TEXT NOT NULL,
			fetched_at    BIGINT NOT NULL,
			PRIMARY KEY (source_type, source_key, dedup_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cached_items_fetched ON cached_items(fetched_at)`,
	},
	// v2: digests
	{
		`CREATE TABLE IF NOT EXISTS digests (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			summary          TEXT NOT NULL,
			content          TEXT NOT NULL,
			ai_model         TEXT NOT NULL,
			analysis_type    TEXT NOT NULL,
			window_start     BIGINT NOT NULL,
			window_end       BIGINT NOT NULL,
			item_count       INTEGER NOT NULL,
			source_counts    TEXT NOT NULL,
			posted_to_social BOOLEAN NOT NULL DEFAULT FALSE,
			social_url       TEXT NOT NULL DEFAULT '',
			sent_to_chatops  BOOLEAN NOT NULL DEFAULT FALSE,
			tokens_used      BIGINT NOT NULL,
			cost_usd         DOUBLE PRECISION NOT NULL,
			created_at       BIGINT NOT NULL,
			updated_at       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_digests_created ON digests(created_at)`,
	},
	// v3: runtime settings
	{
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key   TEXT PRIMARY KEY,
			setting_value TEXT NOT NULL,
			updated_at    BIGINT NOT NULL
		)`,
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if err := s.applyMigration(i+1, migrations[i]); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(target int, statements []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	query, args, err := s.builder.Update("schema_version").Set("version", target).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("update schema version to %d: %w", target, err)
	}
	return tx.Commit()
}
