// Package watcher reports debounced changes to binaries under a directory.
package watcher

import "context"

// FileWatcher monitors binaries for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching the root directory, calling callback with debounced changes.
	Start(ctx context.Context, callback func(changes Changes)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// Matcher decides which files are of interest. Paths are relative to the
// watched root and slash separated. seeker.FileDiscovery implements it.
type Matcher interface {
	Match(relPath string) bool
}

// Changes is one debounced batch. A path is classified when the batch fires:
// files that still exist are Updated, the rest Removed. Both are sorted.
type Changes struct {
	Updated []string
	Removed []string
}

// Empty reports whether the batch holds nothing.
func (c Changes) Empty() bool {
	return len(c.Updated) == 0 && len(c.Removed) == 0
}
