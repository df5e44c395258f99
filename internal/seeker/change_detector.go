package seeker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/symseek/internal/storage"
)

// BinaryCatalog lists the binaries a previous scan recorded.
type BinaryCatalog interface {
	Binaries() ([]storage.BinaryRecord, error)
}

// ChangeSet contains the result of change detection.
type ChangeSet struct {
	Added     []string // Candidates not in the catalog
	Modified  []string // Catalogued binaries whose content changed
	Deleted   []string // Catalogued binaries under the root that are gone from disk
	Unchanged []string // Same content (mtime may have drifted)
}

// Pending returns the files that need scanning, added first.
func (c *ChangeSet) Pending() []string {
	return append(append([]string{}, c.Added...), c.Modified...)
}

// ChangeDetector compares candidate files on disk to the catalog.
type ChangeDetector struct {
	discovery *FileDiscovery
	catalog   BinaryCatalog
}

// NewChangeDetector creates a new change detector.
func NewChangeDetector(discovery *FileDiscovery, catalog BinaryCatalog) *ChangeDetector {
	return &ChangeDetector{
		discovery: discovery,
		catalog:   catalog,
	}
}

// DetectChanges classifies candidate files against the catalog.
//
// With an empty hint every file discovery finds is checked and catalogued
// binaries under the root that no longer exist are reported as Deleted.
// With a hint only those files are checked.
//
// A file whose catalogued modification time equals the one on disk is
// Unchanged without being read. Otherwise its SHA-256 decides.
//
// Files no parser recognised are never catalogued, so they stay Added.
func (cd *ChangeDetector) DetectChanges(ctx context.Context, hint []string) (*ChangeSet, error) {
	changes := &ChangeSet{}

	files := hint
	if len(hint) == 0 {
		files = cd.discovery.DiscoverFiles()
	}

	records, err := cd.catalog.Binaries()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	catalogued := make(map[string]storage.BinaryRecord, len(records))
	for _, r := range records {
		catalogued[r.BinaryPath] = r
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		record, ok := catalogued[path]
		if !ok {
			changes.Added = append(changes.Added, path)
			continue
		}

		// Mtime fast-path
		if record.ModTime.Equal(info.ModTime()) && record.SizeBytes == info.Size() {
			changes.Unchanged = append(changes.Unchanged, path)
			continue
		}

		hash, err := storage.HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", path, err)
		}
		if hash == record.FileHash {
			changes.Unchanged = append(changes.Unchanged, path)
		} else {
			changes.Modified = append(changes.Modified, path)
		}
	}

	if len(hint) == 0 {
		for _, r := range records {
			if !within(cd.discovery.Root(), r.BinaryPath) {
				continue
			}
			if _, err := os.Stat(r.BinaryPath); os.IsNotExist(err) {
				changes.Deleted = append(changes.Deleted, r.BinaryPath)
			}
		}
	}

	return changes, nil
}

// within reports whether path lies under root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
