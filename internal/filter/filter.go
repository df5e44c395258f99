// Package filter builds symbol-accept predicates for scans.
package filter

import (
	"errors"
	"fmt"

	"github.com/grafana/regexp"

	"github.com/mvp-joe/symseek/internal/seeker"
	"github.com/mvp-joe/symseek/internal/symbol"
)

// ErrConflictingDirection is returned when both ExportsOnly and ImportsOnly are set.
var ErrConflictingDirection = errors.New("exports-only and imports-only are mutually exclusive")

// Options selects which symbols a scan keeps. Zero values accept everything.
type Options struct {
	// Pattern is a regular expression matched against the demangled and the
	// mangled name. Either matching is enough.
	Pattern    string
	IgnoreCase bool

	Kinds  []symbol.NameType
	Access []symbol.Access

	// Modifiers that must all be present.
	Modifiers symbol.Modifiers

	ExportsOnly bool
	ImportsOnly bool

	// Limit caps the symbols kept per file. Reaching it stops the file.
	Limit int
}

// Filter is a stateful symbol handler. The per-file limit needs to know where
// files begin, so scans using a limit must report progress through Progress.
type Filter struct {
	pattern   *regexp.Regexp
	kinds     map[symbol.NameType]bool
	access    map[symbol.Access]bool
	modifiers symbol.Modifiers
	exports   bool
	imports   bool
	limit     int

	kept int
}

// New compiles opts into a Filter.
func New(opts Options) (*Filter, error) {
	if opts.ExportsOnly && opts.ImportsOnly {
		return nil, ErrConflictingDirection
	}

	f := &Filter{
		modifiers: opts.Modifiers,
		exports:   opts.ExportsOnly,
		imports:   opts.ImportsOnly,
		limit:     opts.Limit,
	}

	if opts.Pattern != "" {
		expr := opts.Pattern
		if opts.IgnoreCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid symbol pattern: %w", err)
		}
		f.pattern = re
	}

	if len(opts.Kinds) > 0 {
		f.kinds = make(map[symbol.NameType]bool, len(opts.Kinds))
		for _, k := range opts.Kinds {
			f.kinds[k] = true
		}
	}
	if len(opts.Access) > 0 {
		f.access = make(map[symbol.Access]bool, len(opts.Access))
		for _, a := range opts.Access {
			f.access[a] = true
		}
	}

	return f, nil
}

// Matches reports whether sym passes every criterion except the limit.
func (f *Filter) Matches(sym symbol.Symbol) bool {
	if f.exports && !sym.Implements {
		return false
	}
	if f.imports && sym.Implements {
		return false
	}
	if f.kinds != nil && !f.kinds[sym.Kind] {
		return false
	}
	if f.access != nil && !f.access[sym.Access] {
		return false
	}
	if !sym.Modifiers.Has(f.modifiers) {
		return false
	}
	if f.pattern != nil && !f.pattern.MatchString(sym.DemangledName) && !f.pattern.MatchString(sym.MangledName) {
		return false
	}
	return true
}

// Handle is a symbol.Handler.
func (f *Filter) Handle(sym symbol.Symbol) symbol.HandlerAction {
	if f.limit > 0 && f.kept >= f.limit {
		return symbol.Stop
	}
	if !f.Matches(sym) {
		return symbol.Skip
	}
	f.kept++
	return symbol.Add
}

// Reset starts a new file.
func (f *Filter) Reset() {
	f.kept = 0
}

// Progress wraps next so that the filter is reset whenever a file starts.
func (f *Filter) Progress(next seeker.ProgressReporter) seeker.ProgressReporter {
	if next == nil {
		next = &seeker.NoOpProgressReporter{}
	}
	return &resettingReporter{ProgressReporter: next, filter: f}
}

type resettingReporter struct {
	seeker.ProgressReporter
	filter *Filter
}

func (r *resettingReporter) OnItemStatus(path string, status symbol.ProgressStatus) {
	if status == symbol.Start {
		r.filter.Reset()
	}
	r.ProgressReporter.OnItemStatus(path, status)
}
