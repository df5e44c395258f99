package seeker

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gobwas/glob"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// DiscoveryOptions tunes FileDiscovery beyond the masks.
type DiscoveryOptions struct {
	// Ignore holds glob patterns matched against paths relative to the root.
	Ignore []string

	// FollowSymlinks includes symlinked files. Symlinked directories are
	// never descended into.
	FollowSymlinks bool

	Logger log.Logger
}

// FileDiscovery finds candidate binaries under a root directory.
//
// Masks are shell-style globs. A mask without a slash is matched against the
// file name, a mask with one against the slash-separated path relative to the
// root. Matching is case-insensitive on Windows.
type FileDiscovery struct {
	rootDir        string
	masks          []compiledPattern
	ignorePatterns []compiledPattern
	followSymlinks bool
	foldCase       bool
	logger         log.Logger
}

// NewFileDiscovery compiles masks and ignore patterns for rootDir.
func NewFileDiscovery(rootDir string, masks []string, opts DiscoveryOptions) (*FileDiscovery, error) {
	fd := &FileDiscovery{
		rootDir:        rootDir,
		followSymlinks: opts.FollowSymlinks,
		foldCase:       runtime.GOOS == "windows",
		logger:         opts.Logger,
	}
	if fd.logger == nil {
		fd.logger = log.NewNopLogger()
	}

	var err error
	if fd.masks, err = fd.compile(masks); err != nil {
		return nil, err
	}
	if fd.ignorePatterns, err = fd.compile(opts.Ignore); err != nil {
		return nil, err
	}
	return fd, nil
}

// Root returns the directory discovery starts from.
func (fd *FileDiscovery) Root() string {
	return fd.rootDir
}

func (fd *FileDiscovery) compile(patterns []string) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		if fd.foldCase {
			pattern = strings.ToLower(pattern)
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return compiled, nil
}

// DiscoverFiles walks the tree depth-first. The files of every subdirectory
// come before the files of the directory containing it; entries of a single
// directory are in lexical order. Unreadable directories are skipped.
func (fd *FileDiscovery) DiscoverFiles() []string {
	files := []string{}
	fd.walk(fd.rootDir, &files)
	return files
}

func (fd *FileDiscovery) walk(dir string, files *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		level.Debug(fd.logger).Log("msg", "skipping unreadable directory", "dir", dir, "err", err)
		return
	}

	var names []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		relPath := fd.relative(path)

		switch {
		case entry.IsDir():
			if fd.shouldIgnore(relPath) {
				continue
			}
			fd.walk(path, files)
		case entry.Type()&os.ModeSymlink != 0:
			if !fd.followSymlinks {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if fd.accepts(entry.Name(), relPath) {
				names = append(names, path)
			}
		case entry.Type().IsRegular():
			if fd.accepts(entry.Name(), relPath) {
				names = append(names, path)
			}
		}
	}

	slices.Sort(names)
	*files = append(*files, names...)
}

func (fd *FileDiscovery) relative(path string) string {
	relPath, err := filepath.Rel(fd.rootDir, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	if fd.foldCase {
		relPath = strings.ToLower(relPath)
	}
	return relPath
}

// Match reports whether a file at relPath (relative to the root) would be
// discovered. The watcher uses it to filter events.
func (fd *FileDiscovery) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if fd.foldCase {
		relPath = strings.ToLower(relPath)
	}
	return fd.accepts(pathBase(relPath), relPath)
}

func (fd *FileDiscovery) accepts(name, relPath string) bool {
	if fd.foldCase {
		name = strings.ToLower(name)
	}
	if fd.shouldIgnore(relPath) {
		return false
	}
	for _, cp := range fd.masks {
		target := name
		if strings.Contains(cp.pattern, "/") {
			target = relPath
		}
		if cp.glob.Match(target) {
			return true
		}
	}
	return false
}

// shouldIgnore checks if a path matches any ignore pattern.
func (fd *FileDiscovery) shouldIgnore(relPath string) bool {
	if strings.HasPrefix(relPath, ".symseek/") || relPath == ".symseek" {
		return true
	}

	for _, cp := range fd.ignorePatterns {
		// "build/**" also names the build directory itself
		if cp.glob.Match(relPath) || cp.glob.Match(relPath+"/**") {
			return true
		}
	}
	return false
}

func pathBase(relPath string) string {
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		return relPath[i+1:]
	}
	return relPath
}
