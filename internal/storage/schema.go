package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is written to catalog_metadata on creation.
const SchemaVersion = "1"

// CreateSchema creates all catalog tables and indexes in one transaction.
//
// Must be called with SQLite PRAGMA foreign_keys = ON.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	// Create all tables in dependency order
	tables := []struct {
		name string
		ddl  string
	}{
		{"scans", createScansTable},
		{"binaries", createBinariesTable},
		{"symbols", createSymbolsTable},
		{"catalog_metadata", createCatalogMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`INSERT INTO catalog_metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)`,
		SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap catalog_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion retrieves the schema version from catalog_metadata.
// Returns "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='catalog_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check catalog_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM catalog_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in catalog_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

// Table DDL constants

const createScansTable = `
CREATE TABLE scans (
    scan_id TEXT PRIMARY KEY,                    -- UUID
    root TEXT NOT NULL,                          -- Scanned directory, empty for file lists
    masks TEXT NOT NULL,                         -- Newline separated glob masks
    started_at TEXT NOT NULL,                    -- ISO 8601
    finished_at TEXT NOT NULL,                   -- ISO 8601
    interrupted INTEGER NOT NULL DEFAULT 0,
    binary_count INTEGER NOT NULL DEFAULT 0,
    symbol_count INTEGER NOT NULL DEFAULT 0
)
`

const createBinariesTable = `
CREATE TABLE binaries (
    binary_path TEXT PRIMARY KEY,                -- Path as discovered
    scan_id TEXT NOT NULL,                       -- Latest scan that saw this binary
    size_bytes INTEGER NOT NULL DEFAULT 0,
    mod_time TEXT NOT NULL DEFAULT '',           -- RFC 3339 with nanoseconds
    file_hash TEXT NOT NULL DEFAULT '',          -- SHA-256 hex of the file content
    symbol_count INTEGER NOT NULL DEFAULT 0,
    scanned_at TEXT NOT NULL,
    FOREIGN KEY (scan_id) REFERENCES scans(scan_id) ON DELETE CASCADE
)
`

const createSymbolsTable = `
CREATE TABLE symbols (
    symbol_id INTEGER PRIMARY KEY AUTOINCREMENT,
    binary_path TEXT NOT NULL,
    position INTEGER NOT NULL,                   -- Order within the binary
    mangled_name TEXT NOT NULL,
    demangled_name TEXT NOT NULL,
    kind TEXT NOT NULL,                          -- function, method, variable
    access TEXT NOT NULL,                        -- public, protected, private
    modifiers INTEGER NOT NULL DEFAULT 0,        -- Bitset, see symbol.Modifiers
    implements INTEGER NOT NULL DEFAULT 1,       -- 1 for exports, 0 for imports
    library TEXT NOT NULL DEFAULT '',            -- Import module when known
    FOREIGN KEY (binary_path) REFERENCES binaries(binary_path) ON DELETE CASCADE
)
`

const createCatalogMetadataTable = `
CREATE TABLE catalog_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

var indexes = []string{
	"CREATE INDEX idx_binaries_scan ON binaries(scan_id)",
	"CREATE INDEX idx_symbols_binary ON symbols(binary_path, position)",
	"CREATE INDEX idx_symbols_demangled ON symbols(demangled_name)",
	"CREATE INDEX idx_symbols_library ON symbols(library) WHERE library != ''",
}
