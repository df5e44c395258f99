// Package demangle turns compiler-decorated linker names back into C++
// declarations. Microsoft ("?") and Itanium ("_Z") schemes are supported;
// anything else is treated as a plain C name.
package demangle

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Demangler converts a decorated name. The boolean is false when the name is
// not in a scheme the Demangler handles or cannot be decoded.
type Demangler interface {
	Demangle(name string) (string, bool)
}

// Itanium demangles names following the Itanium C++ ABI.
type Itanium struct {
	Options []demangle.Option
}

// Demangle implements Demangler.
func (i Itanium) Demangle(name string) (string, bool) {
	if !strings.HasPrefix(name, "_Z") {
		return "", false
	}
	opts := i.Options
	if opts == nil {
		opts = []demangle.Option{demangle.NoClones}
	}
	out, err := demangle.ToString(name, opts...)
	if err != nil {
		return "", false
	}
	return out, true
}

// Auto picks the scheme from the name prefix.
type Auto struct {
	MSVC    Demangler
	Itanium Demangler
}

// NewAuto returns an Auto using the default MSVC and Itanium demanglers.
func NewAuto() *Auto {
	return &Auto{
		MSVC:    MSVC{},
		Itanium: Itanium{},
	}
}

// Demangle implements Demangler.
func (a *Auto) Demangle(name string) (string, bool) {
	switch {
	case strings.HasPrefix(name, "?"):
		return a.MSVC.Demangle(name)
	case strings.HasPrefix(name, "_Z"):
		return a.Itanium.Demangle(name)
	}
	return "", false
}

// Scheme names the decoration scheme a name appears to use.
func Scheme(name string) string {
	switch {
	case strings.HasPrefix(name, "?"):
		return "msvc"
	case strings.HasPrefix(name, "_Z"):
		return "itanium"
	}
	return "c"
}
