package format

import (
	"encoding/binary"
	"fmt"

	"github.com/mvp-joe/symseek/internal/mapped"
	"github.com/mvp-joe/symseek/internal/symbol"
)

const (
	dosMagic       = 0x5A4D
	peSignature    = 0x00004550
	peLfanewOffset = 0x3C

	pe32Magic     = 0x10b
	pe32PlusMagic = 0x20b

	dirExport        = 0
	dirImport        = 1
	dirCOMDescriptor = 14

	sectionHeaderSize    = 40
	importDescriptorSize = 20
)

// peLayout holds the field widths that differ between PE32 (I386) and
// PE32+ (AMD64) images.
type peLayout struct {
	name        string
	dataDirs    uint64
	thunkSize   uint64
	ordinalFlag uint64
}

var (
	layoutPE32     = peLayout{name: "pe32", dataDirs: 96, thunkSize: 4, ordinalFlag: 1 << 31}
	layoutPE32Plus = peLayout{name: "pe32+", dataDirs: 112, thunkSize: 8, ordinalFlag: 1 << 63}
)

type peSection struct {
	virtualAddress uint32
	virtualSize    uint32
	rawPointer     uint32
}

type peImage struct {
	v        view
	layout   peLayout
	optional uint64
	dirCount uint32
	sections []peSection
}

// PEParser reads export and import tables of PE executables and DLLs.
// Managed (CLR) images are not accepted.
type PEParser struct{}

func (PEParser) Name() string { return "pe" }

func (PEParser) Reader(path string) (SymbolReader, error) {
	f, err := mapped.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newPEReader(f)
	if err != nil || r == nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newPEReader(f *mapped.File) (*reader, error) {
	if !hasMagic(f, 0, []byte("MZ")) {
		return nil, nil
	}

	data, err := f.Map(0, 0)
	if err != nil {
		return nil, err
	}

	img, ok, err := parsePEHeaders(view{b: data, order: binary.LittleEndian})
	if err != nil || !ok {
		return nil, err
	}

	count, err := countSymbols(img.walk)
	if err != nil {
		return nil, err
	}
	return newReader(f, count, img.walk), nil
}

// parsePEHeaders returns ok=false for files that are not PE images (DOS
// executables, CLR assemblies, unknown optional header kinds).
func parsePEHeaders(v view) (*peImage, bool, error) {
	if len(v.b) < peLfanewOffset+4 {
		return nil, false, nil
	}
	lfanew := uint64(binary.LittleEndian.Uint32(v.b[peLfanewOffset:]))
	if lfanew+24 > uint64(len(v.b)) || binary.LittleEndian.Uint32(v.b[lfanew:]) != peSignature {
		return nil, false, nil
	}

	fileHeader := lfanew + 4
	numSections, err := v.u16(fileHeader + 2)
	if err != nil {
		return nil, false, err
	}
	optionalSize, err := v.u16(fileHeader + 16)
	if err != nil {
		return nil, false, err
	}

	img := &peImage{v: v, optional: fileHeader + 20}

	magic, err := v.u16(img.optional)
	if err != nil {
		return nil, false, err
	}
	switch magic {
	case pe32Magic:
		img.layout = layoutPE32
	case pe32PlusMagic:
		img.layout = layoutPE32Plus
	default:
		return nil, false, nil
	}

	if img.dirCount, err = v.u32(img.optional + img.layout.dataDirs - 4); err != nil {
		return nil, false, err
	}

	clrRVA, _, err := img.directory(dirCOMDescriptor)
	if err != nil {
		return nil, false, err
	}
	if clrRVA != 0 {
		return nil, false, nil
	}

	table := img.optional + uint64(optionalSize)
	for i := uint64(0); i < uint64(numSections); i++ {
		hdr, err := v.slice(table+i*sectionHeaderSize, sectionHeaderSize)
		if err != nil {
			return nil, false, err
		}
		img.sections = append(img.sections, peSection{
			virtualSize:    binary.LittleEndian.Uint32(hdr[8:]),
			virtualAddress: binary.LittleEndian.Uint32(hdr[12:]),
			rawPointer:     binary.LittleEndian.Uint32(hdr[20:]),
		})
		if s := &img.sections[len(img.sections)-1]; s.virtualSize == 0 {
			s.virtualSize = binary.LittleEndian.Uint32(hdr[16:])
		}
	}

	return img, true, nil
}

func (img *peImage) directory(index uint32) (rva, size uint32, err error) {
	if index >= img.dirCount {
		return 0, 0, nil
	}
	entry := img.optional + img.layout.dataDirs + uint64(index)*8
	if rva, err = img.v.u32(entry); err != nil {
		return 0, 0, err
	}
	if size, err = img.v.u32(entry + 4); err != nil {
		return 0, 0, err
	}
	return rva, size, nil
}

// offset translates an RVA to a file offset through the section table.
func (img *peImage) offset(rva uint32) (uint64, error) {
	for _, s := range img.sections {
		if rva >= s.virtualAddress && rva-s.virtualAddress < s.virtualSize {
			return uint64(s.rawPointer) + uint64(rva-s.virtualAddress), nil
		}
	}
	return 0, corrupt("rva %#x is not inside any section", rva)
}

func (img *peImage) stringAt(rva uint32) (string, error) {
	off, err := img.offset(rva)
	if err != nil {
		return "", err
	}
	return img.v.cstring(off)
}

func (img *peImage) walk(yield func(symbol.RawSymbol) bool) error {
	more, err := img.walkExports(yield)
	if err != nil || !more {
		return err
	}
	_, err = img.walkImports(yield)
	return err
}

func (img *peImage) walkExports(yield func(symbol.RawSymbol) bool) (bool, error) {
	rva, _, err := img.directory(dirExport)
	if err != nil || rva == 0 {
		return true, err
	}
	dir, err := img.offset(rva)
	if err != nil {
		return false, err
	}

	numberOfNames, err := img.v.u32(dir + 24)
	if err != nil {
		return false, err
	}
	if numberOfNames == 0 {
		return true, nil
	}
	namesRVA, err := img.v.u32(dir + 32)
	if err != nil {
		return false, err
	}
	names, err := img.offset(namesRVA)
	if err != nil {
		return false, err
	}

	for i := uint64(0); i < uint64(numberOfNames); i++ {
		nameRVA, err := img.v.u32(names + i*4)
		if err != nil {
			return false, err
		}
		name, err := img.stringAt(nameRVA)
		if err != nil {
			return false, err
		}
		if !yield(symbol.RawSymbol{Name: name, Defined: true}) {
			return false, nil
		}
	}
	return true, nil
}

func (img *peImage) thunk(off uint64) (uint64, error) {
	if img.layout.thunkSize == 8 {
		return img.v.u64(off)
	}
	v, err := img.v.u32(off)
	return uint64(v), err
}

func (img *peImage) walkImports(yield func(symbol.RawSymbol) bool) (bool, error) {
	rva, _, err := img.directory(dirImport)
	if err != nil || rva == 0 {
		return true, err
	}
	desc, err := img.offset(rva)
	if err != nil {
		return false, err
	}

	for ; ; desc += importDescriptorSize {
		originalFirstThunk, err := img.v.u32(desc)
		if err != nil {
			return false, err
		}
		nameRVA, err := img.v.u32(desc + 12)
		if err != nil {
			return false, err
		}
		firstThunk, err := img.v.u32(desc + 16)
		if err != nil {
			return false, err
		}
		if originalFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			return true, nil
		}

		module, err := img.stringAt(nameRVA)
		if err != nil {
			return false, err
		}

		thunkRVA := originalFirstThunk
		if thunkRVA == 0 {
			thunkRVA = firstThunk
		}
		thunks, err := img.offset(thunkRVA)
		if err != nil {
			return false, err
		}

		for t := thunks; ; t += img.layout.thunkSize {
			value, err := img.thunk(t)
			if err != nil {
				return false, err
			}
			if value == 0 {
				break
			}

			var name string
			if value&img.layout.ordinalFlag != 0 {
				name = fmt.Sprintf("%s/#%d", module, value&0xFFFF)
			} else {
				hint, err := img.offset(uint32(value & 0x7FFFFFFF))
				if err != nil {
					return false, err
				}
				if name, err = img.v.cstring(hint + 2); err != nil {
					return false, err
				}
			}

			if !yield(symbol.RawSymbol{Name: name, Library: module}) {
				return false, nil
			}
		}
	}
}
