package format

// Registry tries a fixed list of parsers in order. The first parser that
// accepts a file wins, so more specific formats must come before general ones.
type Registry struct {
	parsers []ImageParser
}

// NewRegistry returns a Registry trying parsers in the given order.
func NewRegistry(parsers ...ImageParser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry knows every supported format. COFF objects come last since
// their only signature is the machine field.
func DefaultRegistry() *Registry {
	return NewRegistry(ArchiveParser{}, PEParser{}, ELFParser{}, COFFParser{})
}

// Parsers returns the parsers in trial order.
func (r *Registry) Parsers() []ImageParser {
	return r.parsers
}

// Open returns a reader from the first parser that accepts path, along with
// that parser's name. It returns a nil reader and nil error when no parser
// recognises the file. An error from a parser ends the trial.
func (r *Registry) Open(path string) (SymbolReader, string, error) {
	for _, p := range r.parsers {
		reader, err := p.Reader(path)
		if err != nil {
			return nil, p.Name(), err
		}
		if reader != nil {
			return reader, p.Name(), nil
		}
	}
	return nil, "", nil
}
