package seeker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/symseek/internal/storage"
	"github.com/mvp-joe/symseek/internal/symbol"
)

// Test Plan for ChangeDetector:
// - Files missing from the catalog are Added
// - Content changes are Modified, mtime-only changes stay Unchanged
// - Catalogued binaries removed from disk are Deleted, but only under the root
// - A hint restricts the check and never reports deletions
// - A cancelled context aborts detection

func catalogOf(t *testing.T, paths ...string) *storage.CatalogReader {
	t.Helper()
	db := storage.NewTestDB(t)
	results := make([]symbol.SymbolsInBinary, 0, len(paths))
	for _, p := range paths {
		results = append(results, symbol.SymbolsInBinary{BinaryPath: p})
	}
	_, err := storage.NewCatalogWriter(db).WriteScan(storage.ScanRecord{}, results)
	require.NoError(t, err)
	return storage.NewCatalogReader(db)
}

func TestChangeDetector_DetectChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	same := filepath.Join(dir, "same.dll")
	touched := filepath.Join(dir, "touched.dll")
	edited := filepath.Join(dir, "edited.dll")
	removed := filepath.Join(dir, "removed.dll")
	for _, p := range []string{same, touched, edited, removed} {
		writeFile(t, p, archive("x"))
	}

	catalog := catalogOf(t, same, touched, edited, removed, "/elsewhere/other.dll")

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(touched, later, later))
	writeFile(t, edited, archive("x", "y"))
	require.NoError(t, os.Chtimes(edited, later, later))
	require.NoError(t, os.Remove(removed))
	added := filepath.Join(dir, "sub", "added.dll")
	writeFile(t, added, archive("z"))

	fd, err := NewFileDiscovery(dir, []string{"*.dll"}, DiscoveryOptions{})
	require.NoError(t, err)

	changes, err := NewChangeDetector(fd, catalog).DetectChanges(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{added}, changes.Added)
	assert.Equal(t, []string{edited}, changes.Modified)
	assert.Equal(t, []string{removed}, changes.Deleted)
	assert.ElementsMatch(t, []string{same, touched}, changes.Unchanged)
	assert.Equal(t, []string{added, edited}, changes.Pending())
}

func TestChangeDetector_Hint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.dll")
	b := filepath.Join(dir, "b.dll")
	gone := filepath.Join(dir, "gone.dll")
	writeFile(t, a, archive("x"))
	writeFile(t, b, archive("x"))

	catalog := catalogOf(t, a, gone)
	fd, err := NewFileDiscovery(dir, []string{"*.dll"}, DiscoveryOptions{})
	require.NoError(t, err)

	changes, err := NewChangeDetector(fd, catalog).DetectChanges(context.Background(), []string{b, gone})
	require.NoError(t, err)

	assert.Equal(t, []string{b}, changes.Added)
	assert.Empty(t, changes.Unchanged)
	assert.Empty(t, changes.Deleted)
}

func TestChangeDetector_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.dll"), archive("x"))
	fd, err := NewFileDiscovery(dir, []string{"*.dll"}, DiscoveryOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewChangeDetector(fd, catalogOf(t)).DetectChanges(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	root := filepath.Join("/", "proj")
	assert.True(t, within(root, filepath.Join(root, "bin", "a.dll")))
	assert.False(t, within(root, filepath.Join("/", "proj2", "a.dll")))
	assert.False(t, within(root, filepath.Join("/", "other", "a.dll")))
}
