package store

import (
	"fmt"
)

// schemaVersion is the current bootstrap schema version.
const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	if err := s.runBootstrapDDL(); err != nil {
		return err
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	// Schema evolution: add payload column to messages.
	// Uses ALTER TABLE which can't be inside CREATE TABLE IF NOT EXISTS;
	// column existence is checked first so the migration is idempotent.
	if err := s.migratePayloadColumn(); err != nil {
		return fmt.Errorf("migrating payload column: %w", err)
	}

	// Schema evolution: add tag column to notes.
	if err := s.migrateNoteTagColumn(); err != nil {
		return fmt.Errorf("migrating note tag column: %w", err)
	}

	return nil
}

// runBootstrapDDL creates the base tables in a single transaction.
func (s *SQLiteStore) runBootstrapDDL() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			nickname TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			age_group TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			traits TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			payload TEXT DEFAULT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			origin TEXT NOT NULL DEFAULT 'user',
			tag TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS list_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			list_id INTEGER NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			cadence TEXT NOT NULL DEFAULT 'daily' CHECK (cadence IN ('daily', 'weekly', 'monthly')),
			streak INTEGER NOT NULL DEFAULT 0,
			last_completed TIMESTAMP DEFAULT NULL,
			target REAL DEFAULT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mindmap_facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0.8,
			linked_to INTEGER DEFAULT NULL REFERENCES mindmap_facts(id),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_list_items_list ON list_items(list_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range ddl {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing bootstrap DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap transaction: %w", err)
	}
	return nil
}

// seedMeta writes initial metadata rows if they don't exist.
func (s *SQLiteStore) seedMeta() error {
	seeds := map[string]string{
		"schema_version": schemaVersion,
	}
	for key, value := range seeds {
		_, err := s.db.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("seeding meta %q: %w", key, err)
		}
	}
	return nil
}

// migratePayloadColumn adds the payload column to messages for databases
// created before suggestion chips were persisted.
func (s *SQLiteStore) migratePayloadColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('messages') WHERE name='payload'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for payload column: %w", err)
	}
	if count > 0 {
		return nil // Already migrated
	}

	if _, err := s.db.Exec(`ALTER TABLE messages ADD COLUMN payload TEXT DEFAULT NULL`); err != nil {
		return fmt.Errorf("adding payload column: %w", err)
	}
	return nil
}

// migrateNoteTagColumn adds the tag column to notes.
func (s *SQLiteStore) migrateNoteTagColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('notes') WHERE name='tag'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for tag column: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := s.db.Exec(`ALTER TABLE notes ADD COLUMN tag TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("adding tag column: %w", err)
	}
	return nil
}
