package demangle

import (
	"fmt"

	"github.com/maypok86/otter"
)

type cachedResult struct {
	text string
	ok   bool
}

// Cached memoizes another Demangler. Scans over import-heavy trees see the same
// runtime names in almost every binary.
type Cached struct {
	next  Demangler
	cache otter.Cache[string, cachedResult]
}

// NewCached wraps next with a cache holding up to capacity names.
func NewCached(next Demangler, capacity int) (*Cached, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	cache, err := otter.MustBuilder[string, cachedResult](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build demangle cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Demangle implements Demangler.
func (c *Cached) Demangle(name string) (string, bool) {
	if r, ok := c.cache.Get(name); ok {
		return r.text, r.ok
	}
	text, ok := c.next.Demangle(name)
	c.cache.Set(name, cachedResult{text: text, ok: ok})
	return text, ok
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
