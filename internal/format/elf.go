package format

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/mvp-joe/symseek/internal/mapped"
	"github.com/mvp-joe/symseek/internal/symbol"
)

// ELFParser reads global symbols from ELF executables, shared objects and
// relocatable objects of either class and byte order. The full symbol table
// is used when present, the dynamic one otherwise.
type ELFParser struct{}

func (ELFParser) Name() string { return "elf" }

func (ELFParser) Reader(path string) (SymbolReader, error) {
	f, err := mapped.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newELFReader(f)
	if err != nil || r == nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

type elfSection struct {
	typ     elf.SectionType
	offset  uint64
	size    uint64
	link    uint32
	entsize uint64
}

type elfFile struct {
	v       view
	is64    bool
	symbols view
	strtab  view
	entsize uint64
	count   uint64
}

func newELFReader(f *mapped.File) (*reader, error) {
	if !hasMagic(f, 0, []byte(elf.ELFMAG)) || f.Size() < elf.EI_NIDENT {
		return nil, nil
	}

	data, err := f.Map(0, 0)
	if err != nil {
		return nil, err
	}

	ef := &elfFile{}
	switch elf.Class(data[elf.EI_CLASS]) {
	case elf.ELFCLASS32:
	case elf.ELFCLASS64:
		ef.is64 = true
	default:
		return nil, nil
	}
	switch elf.Data(data[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		ef.v = view{b: data, order: binary.LittleEndian}
	case elf.ELFDATA2MSB:
		ef.v = view{b: data, order: binary.BigEndian}
	default:
		return nil, nil
	}

	sections, err := ef.sectionHeaders()
	if err != nil {
		return nil, err
	}

	table := -1
	for i, s := range sections {
		if s.typ == elf.SHT_SYMTAB {
			table = i
			break
		}
		if s.typ == elf.SHT_DYNSYM && table < 0 {
			table = i
		}
	}
	if table < 0 {
		return newReader(f, 0, noSymbols), nil
	}

	symtab := sections[table]
	if int(symtab.link) >= len(sections) {
		return nil, corrupt("symbol table links to section %d of %d", symtab.link, len(sections))
	}
	strtab := sections[symtab.link]

	ef.entsize = symtab.entsize
	if ef.entsize == 0 {
		ef.entsize = elf.Sym32Size
		if ef.is64 {
			ef.entsize = elf.Sym64Size
		}
	}

	symBytes, err := ef.v.slice(symtab.offset, symtab.size)
	if err != nil {
		return nil, err
	}
	strBytes, err := ef.v.slice(strtab.offset, strtab.size)
	if err != nil {
		return nil, err
	}
	ef.symbols = view{b: symBytes, order: ef.v.order}
	ef.strtab = view{b: strBytes, order: ef.v.order}
	ef.count = symtab.size / ef.entsize

	count := 0
	if ef.count > 0 {
		count = int(ef.count - 1)
	}
	return newReader(f, count, ef.walk), nil
}

func (ef *elfFile) sectionHeaders() ([]elfSection, error) {
	r := bytes.NewReader(ef.v.b)

	var shoff uint64
	var shentsize, shnum uint16
	if ef.is64 {
		var hdr elf.Header64
		if err := binary.Read(r, ef.v.order, &hdr); err != nil {
			return nil, corrupt("elf header: %v", err)
		}
		shoff, shentsize, shnum = hdr.Shoff, hdr.Shentsize, hdr.Shnum
	} else {
		var hdr elf.Header32
		if err := binary.Read(r, ef.v.order, &hdr); err != nil {
			return nil, corrupt("elf header: %v", err)
		}
		shoff, shentsize, shnum = uint64(hdr.Shoff), hdr.Shentsize, hdr.Shnum
	}

	if shoff == 0 {
		return nil, nil
	}

	first, err := ef.section(shoff)
	if err != nil {
		return nil, err
	}
	count := uint64(shnum)
	if count == 0 {
		// Extended numbering keeps the real count in section 0.
		count = first.size
	}
	if shentsize == 0 {
		return nil, corrupt("zero section header entry size")
	}
	if count > uint64(len(ef.v.b))/uint64(shentsize) {
		return nil, corrupt("%d section headers cannot fit in %d bytes", count, len(ef.v.b))
	}

	sections := make([]elfSection, 0, count)
	for i := uint64(0); i < count; i++ {
		s, err := ef.section(shoff + i*uint64(shentsize))
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, nil
}

func (ef *elfFile) section(off uint64) (elfSection, error) {
	if ef.is64 {
		raw, err := ef.v.slice(off, uint64(binary.Size(elf.Section64{})))
		if err != nil {
			return elfSection{}, err
		}
		var sh elf.Section64
		if err := binary.Read(bytes.NewReader(raw), ef.v.order, &sh); err != nil {
			return elfSection{}, corrupt("section header: %v", err)
		}
		return elfSection{
			typ:     elf.SectionType(sh.Type),
			offset:  sh.Off,
			size:    sh.Size,
			link:    sh.Link,
			entsize: sh.Entsize,
		}, nil
	}

	raw, err := ef.v.slice(off, uint64(binary.Size(elf.Section32{})))
	if err != nil {
		return elfSection{}, err
	}
	var sh elf.Section32
	if err := binary.Read(bytes.NewReader(raw), ef.v.order, &sh); err != nil {
		return elfSection{}, corrupt("section header: %v", err)
	}
	return elfSection{
		typ:     elf.SectionType(sh.Type),
		offset:  uint64(sh.Off),
		size:    uint64(sh.Size),
		link:    sh.Link,
		entsize: uint64(sh.Entsize),
	}, nil
}

func (ef *elfFile) walk(yield func(symbol.RawSymbol) bool) error {
	// Entry 0 is the reserved null symbol.
	for i := uint64(1); i < ef.count; i++ {
		entry := i * ef.entsize

		var nameOff uint32
		var info uint8
		var shndx uint16
		var err error
		if ef.is64 {
			nameOff, err = ef.symbols.u32(entry)
			if err == nil {
				info, err = ef.symbols.u8(entry + 4)
			}
			if err == nil {
				shndx, err = ef.symbols.u16(entry + 6)
			}
		} else {
			nameOff, err = ef.symbols.u32(entry)
			if err == nil {
				info, err = ef.symbols.u8(entry + 12)
			}
			if err == nil {
				shndx, err = ef.symbols.u16(entry + 14)
			}
		}
		if err != nil {
			return err
		}

		switch elf.ST_BIND(info) {
		case elf.STB_GLOBAL, elf.STB_WEAK, elf.STB_LOOS:
		default:
			continue
		}
		switch elf.ST_TYPE(info) {
		case elf.STT_SECTION, elf.STT_FILE:
			continue
		}

		name, err := ef.strtab.cstring(uint64(nameOff))
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}

		if !yield(symbol.RawSymbol{Name: name, Defined: elf.SectionIndex(shndx) != elf.SHN_UNDEF}) {
			return nil
		}
	}
	return nil
}
