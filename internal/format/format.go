// Package format reads exported and imported symbol names from compiled
// binaries: PE images, COFF objects, ar/LIB archives and ELF files.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/mvp-joe/symseek/internal/mapped"
	"github.com/mvp-joe/symseek/internal/symbol"
)

// ErrCorruptStructure is returned when a file carries the right signature but
// its tables point outside the file or are otherwise inconsistent.
var ErrCorruptStructure = errors.New("corrupt binary structure")

// ImageParser recognises one binary format.
type ImageParser interface {
	// Name identifies the format in logs.
	Name() string

	// Reader opens path and returns a SymbolReader for it. It returns
	// (nil, nil) when the file is not in this parser's format.
	Reader(path string) (SymbolReader, error)
}

// SymbolReader produces the raw symbols of one file.
type SymbolReader interface {
	// SymbolsCount is an upper bound on the number of symbols Symbols yields.
	SymbolsCount() int

	// Symbols yields symbols in on-disk order. It can be ranged over once;
	// the underlying file is released when iteration ends, early or not.
	Symbols() iter.Seq[symbol.RawSymbol]

	// Err reports the error that ended iteration, if any.
	Err() error

	// Close releases the file. It is safe to call more than once.
	Close() error
}

type walkFunc func(yield func(symbol.RawSymbol) bool) error

// reader is the SymbolReader shared by all formats.
type reader struct {
	file    *mapped.File
	count   int
	walk    walkFunc
	err     error
	started bool
}

func newReader(file *mapped.File, count int, walk walkFunc) *reader {
	return &reader{file: file, count: count, walk: walk}
}

func (r *reader) SymbolsCount() int {
	return r.count
}

func (r *reader) Symbols() iter.Seq[symbol.RawSymbol] {
	return func(yield func(symbol.RawSymbol) bool) {
		if r.started {
			return
		}
		r.started = true
		defer r.Close()
		r.err = r.walk(yield)
	}
}

func (r *reader) Err() error {
	return r.err
}

func (r *reader) Close() error {
	return r.file.Close()
}

// countSymbols runs walk without producing anything.
func countSymbols(walk walkFunc) (int, error) {
	n := 0
	err := walk(func(symbol.RawSymbol) bool {
		n++
		return true
	})
	return n, err
}

// hasMagic reports whether the file holds magic at offset.
func hasMagic(f *mapped.File, offset int64, magic []byte) bool {
	if f.Size() < offset+int64(len(magic)) {
		return false
	}
	buf := make([]byte, len(magic))
	if _, err := f.ReadAt(buf, offset); err != nil {
		return false
	}
	return bytes.Equal(buf, magic)
}

// view is a bounds-checked window over mapped bytes.
type view struct {
	b     []byte
	order binary.ByteOrder
}

func (v view) slice(off, n uint64) ([]byte, error) {
	if off > uint64(len(v.b)) || n > uint64(len(v.b))-off {
		return nil, corrupt("%d bytes at offset %#x exceed %d byte region", n, off, len(v.b))
	}
	return v.b[off : off+n], nil
}

func (v view) u8(off uint64) (uint8, error) {
	b, err := v.slice(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v view) u16(off uint64) (uint16, error) {
	b, err := v.slice(off, 2)
	if err != nil {
		return 0, err
	}
	return v.order.Uint16(b), nil
}

func (v view) u32(off uint64) (uint32, error) {
	b, err := v.slice(off, 4)
	if err != nil {
		return 0, err
	}
	return v.order.Uint32(b), nil
}

func (v view) u64(off uint64) (uint64, error) {
	b, err := v.slice(off, 8)
	if err != nil {
		return 0, err
	}
	return v.order.Uint64(b), nil
}

// cstring reads a NUL-terminated string starting at off.
func (v view) cstring(off uint64) (string, error) {
	if off >= uint64(len(v.b)) {
		return "", corrupt("string offset %#x outside %d byte region", off, len(v.b))
	}
	end := bytes.IndexByte(v.b[off:], 0)
	if end < 0 {
		return "", corrupt("unterminated string at offset %#x", off)
	}
	return string(v.b[off : off+uint64(end)]), nil
}

func corrupt(format string, args ...any) error {
	return guard(fmt.Errorf("%w: %s", ErrCorruptStructure, fmt.Sprintf(format, args...)))
}
