package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// Test Plan for Symbol Search:
// - Bare terms match parts of demangled C++ names
// - Field queries reach mangled names and keyword fields
// - Binary wildcard, kind and direction options narrow results
// - Limit caps the result count
// - Re-adding the same symbols does not duplicate documents
// - A cancelled context stops indexing

func fixtures() []symbol.SymbolsInBinary {
	return []symbol.SymbolsInBinary{
		{
			BinaryPath: "/opt/app/bin/app.exe",
			Symbols: []symbol.Symbol{
				{Kind: symbol.Method, Access: symbol.Public, Implements: true,
					MangledName: "?draw@Widget@@QAEXXZ", DemangledName: "void __thiscall Widget::draw(void)"},
				{Kind: symbol.Function, Implements: false, Library: "USER32.dll",
					MangledName: "MessageBoxW", DemangledName: "MessageBoxW"},
			},
		},
		{
			BinaryPath: "/opt/app/lib/libwidget.so",
			Symbols: []symbol.Symbol{
				{Kind: symbol.Method, Access: symbol.Public, Implements: true,
					MangledName: "_ZN6Widget6resizeEii", DemangledName: "Widget::resize(int, int)"},
				{Kind: symbol.Variable, Access: symbol.Public, Implements: true,
					MangledName: "widget_count", DemangledName: "widget_count"},
			},
		},
	}
}

func newSearcher(t *testing.T) *Searcher {
	t.Helper()
	s, err := NewSearcher(context.Background(), FromResults(fixtures()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mangled(results []Result) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.MangledName)
	}
	return out
}

func TestSearcher_Queries(t *testing.T) {
	t.Parallel()

	s := newSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		opts  *Options
		want  []string
	}{
		{name: "class name", query: "widget", want: []string{"?draw@Widget@@QAEXXZ", "_ZN6Widget6resizeEii"}},
		{name: "member name", query: "resize", want: []string{"_ZN6Widget6resizeEii"}},
		{name: "mangled field", query: "mangled_name:MessageBoxW", want: []string{"MessageBoxW"}},
		{name: "binary wildcard", query: "widget", opts: &Options{Binary: "*.so"}, want: []string{"_ZN6Widget6resizeEii"}},
		{name: "kind", query: "widget_count", opts: &Options{Kind: "variable"}, want: []string{"widget_count"}},
		{name: "imports", query: "messageboxw", opts: &Options{Direction: "import"}, want: []string{"MessageBoxW"}},
		{name: "exports only", query: "messageboxw", opts: &Options{Direction: "export"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(ctx, tt.query, tt.opts)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, mangled(results))
		})
	}
}

func TestSearcher_ResultFields(t *testing.T) {
	t.Parallel()

	s := newSearcher(t)
	results, err := s.Search(context.Background(), "MessageBoxW", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "/opt/app/bin/app.exe", r.BinaryPath)
	assert.Equal(t, 1, r.Position)
	assert.Equal(t, "function", r.Kind)
	assert.Equal(t, "import", r.Direction)
	assert.Equal(t, "USER32.dll", r.Library)
	assert.Positive(t, r.Score)
}

func TestSearcher_LimitAndReindex(t *testing.T) {
	t.Parallel()

	s := newSearcher(t)
	ctx := context.Background()

	results, err := s.Search(ctx, "widget", &Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, s.Add(ctx, FromResults(fixtures())))
	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestSearcher_CancelledIndexing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSearcher(ctx, FromResults(fixtures()))
	assert.ErrorIs(t, err, context.Canceled)
}
