package store

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const imagesTable = `
CREATE TABLE IF NOT EXISTS images (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT UNIQUE NOT NULL,
	thumb_path TEXT,
	width INTEGER,
	height INTEGER,
	file_size INTEGER NOT NULL,
	file_hash TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	indexed_at TEXT NOT NULL,
	embedding BLOB,
	extra_json TEXT,
	status TEXT NOT NULL DEFAULT 'PENDING',
	is_loved INTEGER NOT NULL DEFAULT 0,
	is_blurred INTEGER NOT NULL DEFAULT 0,
	latitude REAL,
	longitude REAL
);

CREATE INDEX IF NOT EXISTS idx_images_file_hash ON images(file_hash);
CREATE INDEX IF NOT EXISTS idx_images_last_modified ON images(last_modified);
CREATE INDEX IF NOT EXISTS idx_images_is_loved ON images(is_loved);
`

const watchedFoldersTable = `
CREATE TABLE IF NOT EXISTS watched_folders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	folder_path TEXT UNIQUE NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	added_at TEXT NOT NULL,
	image_count INTEGER NOT NULL DEFAULT 0
);
`

const reindexLogTable = `
CREATE TABLE IF NOT EXISTS reindex_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	image_id INTEGER,
	file_path TEXT NOT NULL,
	status TEXT NOT NULL,
	processed_at TEXT NOT NULL,
	error_message TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reindex_log_processed_at ON reindex_log(processed_at);
`

const settingsTable = `
CREATE TABLE IF NOT EXISTS settings (
	setting_key TEXT PRIMARY KEY,
	setting_value TEXT
);
`

// initSchema brings a freshly opened database up to currentSchemaVersion.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("schema is up to date", "version", version)
		return nil
	}

	log.Debug("migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

func migrateV1(db *sql.DB) error {
	log.Debug("applying migration v1")

	tables := []string{imagesTable, watchedFoldersTable, reindexLogTable, settingsTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// ensureVectorMirror creates the optional sqlite-vec diagnostic mirror
// table for the given embedding dimensionality, if it doesn't exist yet.
// This table is never read from the serving path — only the in-memory
// vectorindex is — and this package never inserts rows into it, so it
// stays empty unless filled from outside.
func ensureVectorMirror(db *sql.DB, dimensions int) error {
	var tableName string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='image_vectors'`).Scan(&tableName)
	if err == sql.ErrNoRows {
		query := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS image_vectors USING vec0(
				image_id INTEGER PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, dimensions)
		_, err := db.Exec(query)
		return err
	}
	return err
}
