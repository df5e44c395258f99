package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// ScanRecord describes one scan run.
type ScanRecord struct {
	ScanID      string
	Root        string
	Masks       []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
	BinaryCount int
	SymbolCount int
}

// CatalogWriter persists scan results.
type CatalogWriter struct {
	db *sql.DB
}

// NewCatalogWriter creates a CatalogWriter instance.
// DB must have schema already created via CreateSchema().
func NewCatalogWriter(db *sql.DB) *CatalogWriter {
	return &CatalogWriter{db: db}
}

// WriteScan stores a scan and its results in a single transaction and returns
// the scan ID. A binary already in the catalog is replaced, symbols included.
// When rec.ScanID is empty a new UUID is assigned.
func (w *CatalogWriter) WriteScan(rec ScanRecord, results []symbol.SymbolsInBinary) (string, error) {
	if rec.ScanID == "" {
		rec.ScanID = uuid.New().String()
	}
	rec.BinaryCount = len(results)
	rec.SymbolCount = 0
	for _, r := range results {
		rec.SymbolCount += len(r.Symbols)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	_, err = sq.Insert("scans").
		Columns("scan_id", "root", "masks", "started_at", "finished_at", "interrupted", "binary_count", "symbol_count").
		Values(
			rec.ScanID,
			rec.Root,
			strings.Join(rec.Masks, "\n"),
			rec.StartedAt.UTC().Format(time.RFC3339),
			rec.FinishedAt.UTC().Format(time.RFC3339),
			rec.Interrupted,
			rec.BinaryCount,
			rec.SymbolCount,
		).
		RunWith(tx).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to write scan %s: %w", rec.ScanID, err)
	}

	// Build the query once with Squirrel, then get SQL for preparation
	sqlStr, _, err := sq.Insert("symbols").
		Columns("binary_path", "position", "mangled_name", "demangled_name", "kind", "access", "modifiers", "implements", "library").
		Values("", 0, "", "", "", "", 0, false, "").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build SQL: %w", err)
	}
	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	scannedAt := rec.FinishedAt.UTC().Format(time.RFC3339)
	for _, r := range results {
		if err := deleteBinary(tx, r.BinaryPath); err != nil {
			return "", err
		}

		var size int64
		var modTime, hash string
		if info, err := os.Stat(r.BinaryPath); err == nil {
			size = info.Size()
			modTime = info.ModTime().UTC().Format(time.RFC3339Nano)
			hash, _ = HashFile(r.BinaryPath)
		}

		_, err = sq.Insert("binaries").
			Columns("binary_path", "scan_id", "size_bytes", "mod_time", "file_hash", "symbol_count", "scanned_at").
			Values(r.BinaryPath, rec.ScanID, size, modTime, hash, len(r.Symbols), scannedAt).
			RunWith(tx).
			Exec()
		if err != nil {
			return "", fmt.Errorf("failed to insert binary %s: %w", r.BinaryPath, err)
		}

		for i, s := range r.Symbols {
			_, err := stmt.Exec(
				r.BinaryPath,
				i,
				s.MangledName,
				s.DemangledName,
				s.Kind.String(),
				s.Access.String(),
				int(s.Modifiers),
				s.Implements,
				s.Library,
			)
			if err != nil {
				return "", fmt.Errorf("failed to insert symbol %s: %w", s.MangledName, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit scan: %w", err)
	}
	return rec.ScanID, nil
}

// DeleteBinaries removes binaries and their symbols, e.g. after the files
// were deleted from disk.
func (w *CatalogWriter) DeleteBinaries(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		if err := deleteBinary(tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func deleteBinary(tx *sql.Tx, path string) error {
	_, err := sq.Delete("binaries").
		Where(sq.Eq{"binary_path": path}).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to delete binary %s: %w", path, err)
	}
	return nil
}

// HashFile returns the SHA-256 hex digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
