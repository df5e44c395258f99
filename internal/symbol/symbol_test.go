package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModifiers(t *testing.T) {
	t.Parallel()

	m := Const | Virtual
	assert.True(t, m.Has(Const))
	assert.True(t, m.Has(Virtual))
	assert.False(t, m.Has(Static))
	assert.False(t, m.Has(Const|Static))
	assert.Equal(t, "const,virtual", m.String())
	assert.Equal(t, "", Modifiers(0).String())
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, k := range []NameType{Function, Method, Variable} {
		got, ok := ParseNameType(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	for _, a := range []Access{Public, Protected, Private} {
		got, ok := ParseAccess(a.String())
		assert.True(t, ok)
		assert.Equal(t, a, got)
	}

	_, ok := ParseNameType("class")
	assert.False(t, ok)
	_, ok = ParseAccess("friend")
	assert.False(t, ok)
}

func TestSymbolDefaults(t *testing.T) {
	t.Parallel()

	var s Symbol
	assert.Equal(t, Function, s.Kind)
	assert.Equal(t, Public, s.Access)
	assert.Equal(t, Add, AcceptAll(s))
}
