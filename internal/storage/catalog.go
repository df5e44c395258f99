package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// OpenCatalog opens the catalog database at dbPath. In write mode the parent
// directory and schema are created as needed; in read-only mode a missing
// database is an error.
func OpenCatalog(dbPath string, readOnly bool) (*sql.DB, error) {
	if readOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog not found at %s, run 'symseek scan --save' first", dbPath)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	dsn := "file:" + dbPath + "?_foreign_keys=on"
	if readOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if !readOnly {
		version, err := GetSchemaVersion(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to check schema version: %w", err)
		}
		if version == "0" {
			if err := CreateSchema(db); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to create schema: %w", err)
			}
		}
	}

	return db, nil
}
