package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// BinaryRecord is a catalogued binary.
type BinaryRecord struct {
	BinaryPath  string
	ScanID      string
	SizeBytes   int64
	ModTime     time.Time
	FileHash    string
	SymbolCount int
	ScannedAt   time.Time
}

// StoredSymbol is a symbol with its catalog position.
type StoredSymbol struct {
	BinaryPath string
	Position   int
	symbol.Symbol
}

// SymbolQuery filters catalog symbols. Zero fields do not filter.
type SymbolQuery struct {
	// NameLike is a SQL LIKE pattern matched against the demangled name.
	NameLike   string
	BinaryPath string
	Library    string
	Kinds      []symbol.NameType
	Access     []symbol.Access
	Implements *bool
	Limit      int
}

// CatalogReader reads scans, binaries and symbols.
type CatalogReader struct {
	db *sql.DB
}

// NewCatalogReader creates a CatalogReader instance.
// DB should have schema already created.
func NewCatalogReader(db *sql.DB) *CatalogReader {
	return &CatalogReader{db: db}
}

// Scans returns all scans, most recent first.
func (r *CatalogReader) Scans() ([]ScanRecord, error) {
	rows, err := sq.Select("scan_id", "root", "masks", "started_at", "finished_at", "interrupted", "binary_count", "symbol_count").
		From("scans").
		OrderBy("started_at DESC").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var masks, startedAt, finishedAt string
		if err := rows.Scan(&rec.ScanID, &rec.Root, &masks, &startedAt, &finishedAt, &rec.Interrupted, &rec.BinaryCount, &rec.SymbolCount); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if masks != "" {
			rec.Masks = strings.Split(masks, "\n")
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		scans = append(scans, rec)
	}
	return scans, rows.Err()
}

// Binaries returns all catalogued binaries ordered by path.
func (r *CatalogReader) Binaries() ([]BinaryRecord, error) {
	rows, err := sq.Select("binary_path", "scan_id", "size_bytes", "mod_time", "file_hash", "symbol_count", "scanned_at").
		From("binaries").
		OrderBy("binary_path").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query binaries: %w", err)
	}
	defer rows.Close()

	var binaries []BinaryRecord
	for rows.Next() {
		var b BinaryRecord
		var modTime, scannedAt string
		if err := rows.Scan(&b.BinaryPath, &b.ScanID, &b.SizeBytes, &modTime, &b.FileHash, &b.SymbolCount, &scannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		b.ModTime, _ = time.Parse(time.RFC3339Nano, modTime)
		b.ScannedAt, _ = time.Parse(time.RFC3339, scannedAt)
		binaries = append(binaries, b)
	}
	return binaries, rows.Err()
}

// Symbols returns the symbols matching q ordered by binary and position.
func (r *CatalogReader) Symbols(q SymbolQuery) ([]StoredSymbol, error) {
	query := sq.Select(
		"binary_path", "position", "mangled_name", "demangled_name",
		"kind", "access", "modifiers", "implements", "library",
	).
		From("symbols").
		OrderBy("binary_path", "position")

	if q.NameLike != "" {
		query = query.Where(sq.Like{"demangled_name": q.NameLike})
	}
	if q.BinaryPath != "" {
		query = query.Where(sq.Eq{"binary_path": q.BinaryPath})
	}
	if q.Library != "" {
		query = query.Where("library = ? COLLATE NOCASE", q.Library)
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = k.String()
		}
		query = query.Where(sq.Eq{"kind": kinds})
	}
	if len(q.Access) > 0 {
		access := make([]string, len(q.Access))
		for i, a := range q.Access {
			access[i] = a.String()
		}
		query = query.Where(sq.Eq{"access": access})
	}
	if q.Implements != nil {
		query = query.Where(sq.Eq{"implements": *q.Implements})
	}
	if q.Limit > 0 {
		query = query.Limit(uint64(q.Limit))
	}

	rows, err := query.RunWith(r.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []StoredSymbol
	for rows.Next() {
		var s StoredSymbol
		var kind, access string
		var modifiers int
		if err := rows.Scan(
			&s.BinaryPath, &s.Position, &s.MangledName, &s.DemangledName,
			&kind, &access, &modifiers, &s.Implements, &s.Library,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Kind, _ = symbol.ParseNameType(kind)
		s.Access, _ = symbol.ParseAccess(access)
		s.Modifiers = symbol.Modifiers(modifiers)
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// Results regroups the symbols matching q per binary, in catalog order.
func (r *CatalogReader) Results(q SymbolQuery) ([]symbol.SymbolsInBinary, error) {
	symbols, err := r.Symbols(q)
	if err != nil {
		return nil, err
	}

	var results []symbol.SymbolsInBinary
	for _, s := range symbols {
		if n := len(results); n == 0 || results[n-1].BinaryPath != s.BinaryPath {
			results = append(results, symbol.SymbolsInBinary{BinaryPath: s.BinaryPath})
		}
		last := &results[len(results)-1]
		last.Symbols = append(last.Symbols, s.Symbol)
	}
	return results, nil
}
