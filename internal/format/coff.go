package format

import (
	"encoding/binary"
	"strings"

	"github.com/mvp-joe/symseek/internal/mapped"
	"github.com/mvp-joe/symseek/internal/symbol"
)

const (
	machineI386  = 0x014C
	machineAMD64 = 0x8664

	coffHeaderSize  = 20
	coffSymbolSize  = 18
	symClassExtern  = 2
	symSectionUndef = 0

	importPrefix = "__imp_"
)

// COFFParser reads external symbols from COFF object files. Objects compiled
// for link-time code generation carry no COFF symbol table and are not
// accepted.
type COFFParser struct{}

func (COFFParser) Name() string { return "coff" }

func (COFFParser) Reader(path string) (SymbolReader, error) {
	f, err := mapped.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newCOFFReader(f)
	if err != nil || r == nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

type coffObject struct {
	v       view
	symbols uint64
	count   uint32
	strtab  uint64
}

func newCOFFReader(f *mapped.File) (*reader, error) {
	if f.Size() < coffHeaderSize {
		return nil, nil
	}

	data, err := f.Map(0, 0)
	if err != nil {
		return nil, err
	}
	v := view{b: data, order: binary.LittleEndian}

	machine, _ := v.u16(0)
	sig2, _ := v.u16(2)
	if machine == 0 && sig2 == 0xFFFF {
		// Anonymous object header (/GL).
		return nil, nil
	}
	if machine != machineI386 && machine != machineAMD64 {
		return nil, nil
	}
	if optionalSize, _ := v.u16(16); optionalSize != 0 {
		return nil, nil
	}

	obj := &coffObject{v: v}
	pointer, _ := v.u32(8)
	obj.count, _ = v.u32(12)
	obj.symbols = uint64(pointer)

	if pointer == 0 || obj.count == 0 {
		return newReader(f, 0, func(func(symbol.RawSymbol) bool) error { return nil }), nil
	}

	obj.strtab = obj.symbols + uint64(obj.count)*coffSymbolSize
	if obj.strtab > uint64(len(data)) {
		return nil, corrupt("symbol table of %d entries at %#x exceeds file size %d", obj.count, pointer, len(data))
	}

	return newReader(f, int(obj.count), obj.walk), nil
}

func (o *coffObject) name(entry []byte) (string, error) {
	if binary.LittleEndian.Uint32(entry[0:4]) != 0 {
		short := entry[0:8]
		for i, c := range short {
			if c == 0 {
				short = short[:i]
				break
			}
		}
		return string(short), nil
	}
	offset := binary.LittleEndian.Uint32(entry[4:8])
	return o.v.cstring(o.strtab + uint64(offset))
}

func (o *coffObject) walk(yield func(symbol.RawSymbol) bool) error {
	for i := uint64(0); i < uint64(o.count); i++ {
		entry, err := o.v.slice(o.symbols+i*coffSymbolSize, coffSymbolSize)
		if err != nil {
			return err
		}

		section := int16(binary.LittleEndian.Uint16(entry[12:14]))
		storageClass := entry[16]
		auxCount := uint64(entry[17])

		if storageClass == symClassExtern {
			name, err := o.name(entry)
			if err != nil {
				return err
			}
			if name != "" {
				raw := symbol.RawSymbol{Name: name, Defined: section != symSectionUndef}
				if !raw.Defined {
					raw.Name = strings.TrimPrefix(raw.Name, importPrefix)
				}
				if !yield(raw) {
					return nil
				}
			}
		}

		i += auxCount
	}
	return nil
}
