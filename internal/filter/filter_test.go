package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// Test Plan for Filter:
// - Zero options accept every symbol
// - Pattern matches either the demangled or the mangled name, optionally ignoring case
// - Kind, access and modifier criteria combine with AND
// - Exports-only and imports-only select by Implements and cannot be combined
// - The limit stops a file after N kept symbols and is reset when a file starts
// - Invalid patterns are reported at construction

var (
	method = symbol.Symbol{
		Kind: symbol.Method, Access: symbol.Private, Modifiers: symbol.Const | symbol.Virtual,
		Implements: true, MangledName: "?get@Foo@@EBEHXZ", DemangledName: "int __thiscall Foo::get(void)",
	}
	variable = symbol.Symbol{
		Kind: symbol.Variable, Access: symbol.Public, Implements: true,
		MangledName: "?count@@3HA", DemangledName: "int count",
	}
	imported = symbol.Symbol{
		Kind: symbol.Function, Access: symbol.Public, Implements: false,
		MangledName: "CreateFileW", DemangledName: "CreateFileW", Library: "KERNEL32.dll",
	}
)

func TestFilter_Matches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want []bool // method, variable, imported
	}{
		{name: "empty", opts: Options{}, want: []bool{true, true, true}},
		{name: "demangled pattern", opts: Options{Pattern: `Foo::`}, want: []bool{true, false, false}},
		{name: "mangled pattern", opts: Options{Pattern: `^\?count`}, want: []bool{false, true, false}},
		{name: "ignore case", opts: Options{Pattern: "createfile", IgnoreCase: true}, want: []bool{false, false, true}},
		{name: "case sensitive", opts: Options{Pattern: "createfile"}, want: []bool{false, false, false}},
		{name: "kinds", opts: Options{Kinds: []symbol.NameType{symbol.Variable, symbol.Function}}, want: []bool{false, true, true}},
		{name: "access", opts: Options{Access: []symbol.Access{symbol.Private}}, want: []bool{true, false, false}},
		{name: "modifiers", opts: Options{Modifiers: symbol.Const | symbol.Virtual}, want: []bool{true, false, false}},
		{name: "exports", opts: Options{ExportsOnly: true}, want: []bool{true, true, false}},
		{name: "imports", opts: Options{ImportsOnly: true}, want: []bool{false, false, true}},
		{name: "combined", opts: Options{ExportsOnly: true, Kinds: []symbol.NameType{symbol.Variable}, Pattern: "count"}, want: []bool{false, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := New(tt.opts)
			require.NoError(t, err)
			got := []bool{f.Matches(method), f.Matches(variable), f.Matches(imported)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Pattern: "(unclosed"})
	assert.Error(t, err)

	_, err = New(Options{ExportsOnly: true, ImportsOnly: true})
	assert.ErrorIs(t, err, ErrConflictingDirection)
}

func TestFilter_Limit(t *testing.T) {
	t.Parallel()

	f, err := New(Options{Limit: 2, ExportsOnly: true})
	require.NoError(t, err)

	progress := f.Progress(nil)
	progress.OnItemStatus("a.dll", symbol.Start)
	assert.Equal(t, symbol.Add, f.Handle(method))
	assert.Equal(t, symbol.Skip, f.Handle(imported))
	assert.Equal(t, symbol.Add, f.Handle(variable))
	assert.Equal(t, symbol.Stop, f.Handle(method))

	progress.OnItemStatus("a.dll", symbol.Finish)
	assert.Equal(t, symbol.Stop, f.Handle(method))

	progress.OnItemStatus("b.dll", symbol.Start)
	assert.Equal(t, symbol.Add, f.Handle(method))
}
