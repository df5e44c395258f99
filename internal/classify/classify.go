// Package classify derives symbol attributes (kind, access, qualifiers) from
// demangled C++ declarations.
package classify

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"github.com/mvp-joe/symseek/internal/demangle"
	"github.com/mvp-joe/symseek/internal/symbol"
)

var (
	constRx     = regexp.MustCompile(`^.+\W+\s*const\s*(&|&&)?$`)
	accessRx    = regexp.MustCompile(`^(public|protected|private):\s*`)
	modifierRx  = regexp.MustCompile(`^(virtual|static)\s+`)
	signatureRx = regexp.MustCompile(`^(.+)\((.*)\)(\s*const)?\s*(&|&&)?$`)
)

// Pass is one text-rewriting step of Classify.
type Pass int

const (
	// PassConst marks trailing-const declarations as const methods.
	PassConst Pass = iota
	// PassAccess strips an access specifier prefix.
	PassAccess
	// PassModifier strips a virtual/static prefix from methods.
	PassModifier
)

func (p Pass) String() string {
	switch p {
	case PassConst:
		return "const"
	case PassAccess:
		return "access"
	case PassModifier:
		return "modifier"
	default:
		return "unknown"
	}
}

// PassOrder lists the passes in the order they run. Signature detection
// always runs after all of them.
type PassOrder []Pass

var (
	// ConstFirst is the default order.
	ConstFirst = PassOrder{PassConst, PassAccess, PassModifier}

	// AccessFirst strips prefixes before looking for a trailing const.
	AccessFirst = PassOrder{PassAccess, PassModifier, PassConst}
)

// ParsePassOrder builds a PassOrder from pass names. Every pass must appear
// exactly once.
func ParsePassOrder(names []string) (PassOrder, error) {
	seen := map[Pass]bool{}
	order := make(PassOrder, 0, len(names))
	for _, name := range names {
		var p Pass
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "const":
			p = PassConst
		case "access":
			p = PassAccess
		case "modifier":
			p = PassModifier
		default:
			return nil, fmt.Errorf("unknown classification pass %q (valid: const, access, modifier)", name)
		}
		if seen[p] {
			return nil, fmt.Errorf("classification pass %q listed twice", name)
		}
		seen[p] = true
		order = append(order, p)
	}
	if len(order) != 3 {
		return nil, fmt.Errorf("classification order needs const, access and modifier, got %v", names)
	}
	return order, nil
}

// Attributes is the outcome of classifying one demangled declaration.
type Attributes struct {
	Kind      symbol.NameType
	Access    symbol.Access
	Modifiers symbol.Modifiers

	// Text is the declaration with access and modifier prefixes removed.
	Text string
}

// Classify runs the passes in order over the trimmed text, then decides
// whether what is left looks like a function signature. A nil order means
// ConstFirst.
func Classify(text string, order PassOrder) Attributes {
	if order == nil {
		order = ConstFirst
	}
	text = strings.TrimSpace(text)

	a := Attributes{Kind: symbol.Function, Access: symbol.Public, Text: text}
	for _, p := range order {
		switch p {
		case PassConst:
			if constRx.MatchString(a.Text) {
				a.Modifiers |= symbol.Const
				a.Kind = symbol.Method
			}
		case PassAccess:
			if m := accessRx.FindStringSubmatch(a.Text); m != nil {
				a.Access, _ = symbol.ParseAccess(m[1])
				a.Kind = symbol.Method
				a.Text = a.Text[len(m[0]):]
			}
		case PassModifier:
			if a.Kind != symbol.Method {
				continue
			}
			if m := modifierRx.FindStringSubmatch(a.Text); m != nil {
				if m[1] == "virtual" {
					a.Modifiers |= symbol.Virtual
				} else {
					a.Modifiers |= symbol.Static
				}
				a.Text = a.Text[len(m[0]):]
			}
		}
	}

	if !signatureRx.MatchString(a.Text) {
		a.Kind = symbol.Variable
		if strings.Contains(a.Text, "const ") {
			a.Modifiers |= symbol.Const
		}
		if strings.Contains(a.Text, "volatile ") {
			a.Modifiers |= symbol.Volatile
		}
	}
	return a
}

// Classifier turns raw symbols into classified ones.
type Classifier struct {
	demangler demangle.Demangler
	order     PassOrder
}

// New returns a Classifier. A nil order means ConstFirst.
func New(d demangle.Demangler, order PassOrder) *Classifier {
	if order == nil {
		order = ConstFirst
	}
	return &Classifier{demangler: d, order: order}
}

// Symbol demangles and classifies raw. Names that do not demangle, or that
// demangle to themselves, keep the default attributes.
func (c *Classifier) Symbol(raw symbol.RawSymbol) symbol.Symbol {
	s := symbol.Symbol{
		Kind:          symbol.Function,
		Access:        symbol.Public,
		Implements:    raw.Defined,
		MangledName:   raw.Name,
		DemangledName: raw.Name,
		Library:       raw.Library,
	}

	text, ok := c.demangler.Demangle(raw.Name)
	if !ok || text == raw.Name {
		return s
	}

	a := Classify(text, c.order)
	s.Kind = a.Kind
	s.Access = a.Access
	s.Modifiers = a.Modifiers
	s.DemangledName = a.Text
	return s
}
