// Package symbol defines the value types produced by a symbol scan.
package symbol

import "strings"

// RawSymbol is a name as read from a binary's tables, before demangling.
type RawSymbol struct {
	// Name is the decorated (or plain C) linker name.
	Name string

	// Defined reports whether the binary provides the symbol (export)
	// rather than requiring it from elsewhere (import).
	Defined bool

	// Library is the module an import is bound to, when the format records
	// it (PE import descriptors). Empty otherwise.
	Library string
}

// NameType is the kind of entity a symbol names.
type NameType int

const (
	Function NameType = iota
	Method
	Variable
)

func (t NameType) String() string {
	switch t {
	case Function:
		return "function"
	case Method:
		return "method"
	case Variable:
		return "variable"
	default:
		return "unknown"
	}
}

// ParseNameType maps a lowercase name back to a NameType.
func ParseNameType(s string) (NameType, bool) {
	switch strings.ToLower(s) {
	case "function":
		return Function, true
	case "method":
		return Method, true
	case "variable":
		return Variable, true
	}
	return Function, false
}

// Access is a C++ member access level. Free functions and variables are Public.
type Access int

const (
	Public Access = iota
	Protected
	Private
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return "unknown"
	}
}

// ParseAccess maps a lowercase name back to an Access.
func ParseAccess(s string) (Access, bool) {
	switch strings.ToLower(s) {
	case "public":
		return Public, true
	case "protected":
		return Protected, true
	case "private":
		return Private, true
	}
	return Public, false
}

// Modifiers is a set of qualifiers.
type Modifiers uint8

const (
	Const Modifiers = 1 << iota
	Volatile
	Virtual
	Static
)

// Has reports whether all bits of m2 are set.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

func (m Modifiers) String() string {
	var parts []string
	if m.Has(Const) {
		parts = append(parts, "const")
	}
	if m.Has(Volatile) {
		parts = append(parts, "volatile")
	}
	if m.Has(Virtual) {
		parts = append(parts, "virtual")
	}
	if m.Has(Static) {
		parts = append(parts, "static")
	}
	return strings.Join(parts, ",")
}

// Symbol is a classified symbol.
type Symbol struct {
	Kind      NameType
	Access    Access
	Modifiers Modifiers

	// Implements is true for exports and false for imports.
	Implements bool

	MangledName   string
	DemangledName string

	// Library is copied from RawSymbol.Library.
	Library string
}

// SymbolsInBinary is the accepted symbol list of one scanned file.
type SymbolsInBinary struct {
	BinaryPath string
	Symbols    []Symbol
}

// HandlerAction tells the scanner what to do with a symbol.
type HandlerAction int

const (
	// Add keeps the symbol.
	Add HandlerAction = iota
	// Skip drops the symbol and continues with the next one.
	Skip
	// Stop drops the symbol and ends extraction for the current file only.
	Stop
)

// Handler decides per symbol whether it is kept.
type Handler func(sym Symbol) HandlerAction

// AcceptAll is a Handler that keeps every symbol.
func AcceptAll(Symbol) HandlerAction {
	return Add
}

// ProgressStatus is the per-file status reported during a scan.
type ProgressStatus int

const (
	Start ProgressStatus = iota
	Reject
	Finish
)

func (s ProgressStatus) String() string {
	switch s {
	case Start:
		return "start"
	case Reject:
		return "reject"
	case Finish:
		return "finish"
	default:
		return "unknown"
	}
}
