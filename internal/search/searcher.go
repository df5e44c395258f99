// Package search provides keyword search over catalogued symbols.
package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mvp-joe/symseek/internal/storage"
	"github.com/mvp-joe/symseek/internal/symbol"
)

const (
	batchSize    = 1000
	defaultLimit = 20
	maxLimit     = 1000
)

// Options narrows a search. A nil *Options uses defaults.
type Options struct {
	Limit int

	// Binary is a wildcard pattern (* and ?) over the binary path.
	Binary string

	Kind   string
	Access string

	// Direction is "export", "import" or empty.
	Direction string
}

// Result is one matching symbol.
type Result struct {
	BinaryPath    string   `json:"binary_path"`
	Position      int      `json:"position"`
	MangledName   string   `json:"mangled_name"`
	DemangledName string   `json:"demangled_name"`
	Kind          string   `json:"kind"`
	Access        string   `json:"access"`
	Direction     string   `json:"direction"`
	Library       string   `json:"library,omitempty"`
	Score         float64  `json:"score"`
	Highlights    []string `json:"highlights,omitempty"`
}

// Searcher is an in-memory bleve index of symbols.
type Searcher struct {
	index bleve.Index
	mu    sync.RWMutex // Protects index during updates
}

// NewSearcher indexes symbols into a new in-memory index.
func NewSearcher(ctx context.Context, symbols []storage.StoredSymbol) (*Searcher, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	s := &Searcher{index: index}
	if err := s.Add(ctx, symbols); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to index symbols: %w", err)
	}
	return s, nil
}

// buildMapping indexes demangled names with the standard analyzer so that
// "Foo::get" is found by either part, and everything else as keywords.
func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	textMapping := bleve.NewTextFieldMapping()
	textMapping.Analyzer = "standard"
	textMapping.Store = true
	textMapping.IncludeTermVectors = true // Phrase search and highlighting

	keywordMapping := bleve.NewTextFieldMapping()
	keywordMapping.Analyzer = "keyword"
	keywordMapping.Store = true

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Analyzer = "keyword"
	storedOnly.Store = true
	storedOnly.Index = false

	numberMapping := bleve.NewNumericFieldMapping()
	numberMapping.Store = true
	numberMapping.Index = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("demangled_name", textMapping)
	docMapping.AddFieldMappingsAt("mangled_name", keywordMapping)
	docMapping.AddFieldMappingsAt("binary_path", keywordMapping)
	docMapping.AddFieldMappingsAt("kind", keywordMapping)
	docMapping.AddFieldMappingsAt("access", keywordMapping)
	docMapping.AddFieldMappingsAt("direction", keywordMapping)
	docMapping.AddFieldMappingsAt("library", keywordMapping)
	docMapping.AddFieldMappingsAt("position", numberMapping)
	docMapping.AddFieldMappingsAt("id", storedOnly)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultField = "demangled_name"
	return indexMapping
}

func documentID(s storage.StoredSymbol) string {
	return s.BinaryPath + "#" + strconv.Itoa(s.Position)
}

func direction(implements bool) string {
	if implements {
		return "export"
	}
	return "import"
}

func toDocument(s storage.StoredSymbol) map[string]interface{} {
	return map[string]interface{}{
		"id":             documentID(s),
		"demangled_name": s.DemangledName,
		"mangled_name":   s.MangledName,
		"binary_path":    s.BinaryPath,
		"kind":           s.Kind.String(),
		"access":         s.Access.String(),
		"direction":      direction(s.Implements),
		"library":        s.Library,
		"position":       float64(s.Position),
	}
}

// Add indexes symbols in batches. Symbols already indexed are replaced.
func (s *Searcher) Add(ctx context.Context, symbols []storage.StoredSymbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for i, sym := range symbols {
		if i%batchSize == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if err := batch.Index(documentID(sym), toDocument(sym)); err != nil {
			return fmt.Errorf("failed to add symbol %s to batch: %w", sym.MangledName, err)
		}
		if batch.Size() >= batchSize {
			if err := s.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = s.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute final batch: %w", err)
		}
	}
	return nil
}

// Search runs a bleve query-string query, e.g. `Foo`, `+kind:method get`,
// `mangled_name:?get*`.
func (s *Searcher) Search(ctx context.Context, queryStr string, opts *Options) ([]Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	queries := []query.Query{bleve.NewQueryStringQuery(queryStr)}
	if opts.Binary != "" {
		q := bleve.NewWildcardQuery(opts.Binary)
		q.SetField("binary_path")
		queries = append(queries, q)
	}
	for field, value := range map[string]string{"kind": opts.Kind, "access": opts.Access, "direction": opts.Direction} {
		if value == "" {
			continue
		}
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		queries = append(queries, q)
	}

	var finalQuery query.Query = queries[0]
	if len(queries) > 1 {
		finalQuery = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(finalQuery, limit, 0, false)
	req.Fields = []string{"binary_path", "position", "mangled_name", "demangled_name", "kind", "access", "direction", "library"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.Fields = []string{"demangled_name"}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{Score: hit.Score}
		r.BinaryPath, _ = hit.Fields["binary_path"].(string)
		r.MangledName, _ = hit.Fields["mangled_name"].(string)
		r.DemangledName, _ = hit.Fields["demangled_name"].(string)
		r.Kind, _ = hit.Fields["kind"].(string)
		r.Access, _ = hit.Fields["access"].(string)
		r.Direction, _ = hit.Fields["direction"].(string)
		r.Library, _ = hit.Fields["library"].(string)
		if pos, ok := hit.Fields["position"].(float64); ok {
			r.Position = int(pos)
		}
		for _, fragments := range hit.Fragments {
			r.Highlights = append(r.Highlights, fragments...)
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the number of indexed symbols.
func (s *Searcher) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Close releases resources held by the searcher.
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// FromResults flattens scan results into indexable symbols.
func FromResults(results []symbol.SymbolsInBinary) []storage.StoredSymbol {
	var out []storage.StoredSymbol
	for _, r := range results {
		for i, sym := range r.Symbols {
			out = append(out, storage.StoredSymbol{BinaryPath: r.BinaryPath, Position: i, Symbol: sym})
		}
	}
	return out
}
