package format

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/mvp-joe/symseek/internal/mapped"
	"github.com/mvp-joe/symseek/internal/symbol"
)

const (
	archiveMagic      = "!<arch>\n"
	archiveHeaderSize = 60
)

// ArchiveParser reads the symbol index (first linker member) of ar archives,
// which covers Windows .lib files and Unix .a files. Every listed symbol is
// defined by some member of the archive.
type ArchiveParser struct{}

func (ArchiveParser) Name() string { return "archive" }

func (ArchiveParser) Reader(path string) (SymbolReader, error) {
	f, err := mapped.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newArchiveReader(f)
	if err != nil || r == nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func noSymbols(func(symbol.RawSymbol) bool) error {
	return nil
}

func newArchiveReader(f *mapped.File) (*reader, error) {
	if !hasMagic(f, 0, []byte(archiveMagic)) {
		return nil, nil
	}
	if f.Size() < int64(len(archiveMagic))+archiveHeaderSize {
		return newReader(f, 0, noSymbols), nil
	}

	header := make([]byte, archiveHeaderSize)
	if _, err := f.ReadAt(header, int64(len(archiveMagic))); err != nil {
		return nil, err
	}

	// "/" is the classic index with 32-bit offsets, "/SYM64/" the GNU variant
	// with 64-bit offsets. Anything else means the archive has no index.
	var width uint64
	switch strings.TrimRight(string(header[0:16]), " ") {
	case "/":
		width = 4
	case "/SYM64/":
		width = 8
	default:
		return newReader(f, 0, noSymbols), nil
	}

	size, err := strconv.ParseUint(strings.TrimSpace(string(header[48:58])), 10, 63)
	if err != nil {
		return nil, corrupt("linker member size %q: %v", header[48:58], err)
	}
	if size < width {
		return nil, corrupt("linker member of %d bytes has no symbol count", size)
	}
	dataOffset := int64(len(archiveMagic)) + archiveHeaderSize
	if size > uint64(f.Size()-dataOffset) {
		return nil, corrupt("linker member of %d bytes exceeds file size %d", size, f.Size())
	}

	data, err := f.Map(dataOffset, int(size))
	if err != nil {
		return nil, err
	}
	v := view{b: data, order: binary.BigEndian}

	var count uint64
	if width == 8 {
		count, err = v.u64(0)
	} else {
		var c uint32
		c, err = v.u32(0)
		count = uint64(c)
	}
	if err != nil {
		return nil, err
	}
	if count > (size-width)/width {
		return nil, corrupt("linker member lists %d offsets in %d bytes", count, size)
	}
	names := width + count*width

	walk := func(yield func(symbol.RawSymbol) bool) error {
		pos := names
		for i := uint64(0); i < count; i++ {
			name, err := v.cstring(pos)
			if err != nil {
				return err
			}
			pos += uint64(len(name)) + 1
			if !yield(symbol.RawSymbol{Name: name, Defined: true}) {
				return nil
			}
		}
		return nil
	}
	return newReader(f, int(count), walk), nil
}
