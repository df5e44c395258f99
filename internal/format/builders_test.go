package format

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

// sectionBuilder lays out the single data section of a synthetic PE image.
type sectionBuilder struct {
	base uint32
	buf  []byte
}

func (s *sectionBuilder) add(b []byte) uint32 {
	rva := s.base + uint32(len(s.buf))
	s.buf = append(s.buf, b...)
	return rva
}

func (s *sectionBuilder) str(v string) uint32 {
	return s.add(append([]byte(v), 0))
}

type peImport struct {
	module   string
	names    []string
	ordinals []uint16
}

type peFixture struct {
	pe64    bool
	clr     bool
	exports []string
	imports []peImport

	// badExportRVA points the export directory outside every section.
	badExportRVA bool
	// noOriginalThunk leaves OriginalFirstThunk zero, as some linkers do.
	noOriginalThunk bool
}

const (
	peSectionRVA = 0x1000
	peSectionRaw = 0x200
)

func buildPE(p peFixture) []byte {
	sec := &sectionBuilder{base: peSectionRVA}
	dirs := make([][2]uint32, 16)

	if len(p.exports) > 0 {
		var nameRVAs []uint32
		for _, name := range p.exports {
			nameRVAs = append(nameRVAs, sec.str(name))
		}
		var names, ordinals []byte
		for i, rva := range nameRVAs {
			names = append(names, le32(rva)...)
			ordinals = append(ordinals, le16(uint16(i))...)
		}
		namesRVA := sec.add(names)
		ordinalsRVA := sec.add(ordinals)

		dir := make([]byte, 40)
		binary.LittleEndian.PutUint32(dir[20:], uint32(len(p.exports)))
		binary.LittleEndian.PutUint32(dir[24:], uint32(len(p.exports)))
		binary.LittleEndian.PutUint32(dir[32:], namesRVA)
		binary.LittleEndian.PutUint32(dir[36:], ordinalsRVA)
		dirs[dirExport] = [2]uint32{sec.add(dir), 40}
	}
	if p.badExportRVA {
		dirs[dirExport] = [2]uint32{0x9000, 40}
	}

	if len(p.imports) > 0 {
		type built struct{ name, thunks uint32 }
		var descs []built
		for _, imp := range p.imports {
			moduleRVA := sec.str(imp.module)
			var values []uint64
			for _, name := range imp.names {
				values = append(values, uint64(sec.add(append(append([]byte{0, 0}, name...), 0))))
			}
			for _, ord := range imp.ordinals {
				if p.pe64 {
					values = append(values, 1<<63|uint64(ord))
				} else {
					values = append(values, 1<<31|uint64(ord))
				}
			}
			values = append(values, 0)

			var thunks []byte
			for _, v := range values {
				if p.pe64 {
					thunks = binary.LittleEndian.AppendUint64(thunks, v)
				} else {
					thunks = append(thunks, le32(uint32(v))...)
				}
			}
			descs = append(descs, built{name: moduleRVA, thunks: sec.add(thunks)})
		}

		var table []byte
		for _, d := range descs {
			entry := make([]byte, importDescriptorSize)
			if !p.noOriginalThunk {
				binary.LittleEndian.PutUint32(entry[0:], d.thunks)
			}
			binary.LittleEndian.PutUint32(entry[12:], d.name)
			binary.LittleEndian.PutUint32(entry[16:], d.thunks)
			table = append(table, entry...)
		}
		table = append(table, make([]byte, importDescriptorSize)...)
		dirs[dirImport] = [2]uint32{sec.add(table), uint32(len(table))}
	}

	if p.clr {
		dirs[dirCOMDescriptor] = [2]uint32{sec.add(make([]byte, 72)), 72}
	}

	const lfanew = 0x40
	layout := layoutPE32
	machine := uint16(machineI386)
	magic := uint16(pe32Magic)
	if p.pe64 {
		layout, machine, magic = layoutPE32Plus, machineAMD64, pe32PlusMagic
	}
	optionalSize := int(layout.dataDirs) + 16*8

	img := make([]byte, peSectionRaw)
	copy(img[0:], "MZ")
	binary.LittleEndian.PutUint32(img[peLfanewOffset:], lfanew)
	copy(img[lfanew:], "PE\x00\x00")

	fileHeader := lfanew + 4
	binary.LittleEndian.PutUint16(img[fileHeader:], machine)
	binary.LittleEndian.PutUint16(img[fileHeader+2:], 1)
	binary.LittleEndian.PutUint16(img[fileHeader+16:], uint16(optionalSize))

	optional := fileHeader + 20
	binary.LittleEndian.PutUint16(img[optional:], magic)
	binary.LittleEndian.PutUint32(img[optional+int(layout.dataDirs)-4:], 16)
	for i, d := range dirs {
		entry := optional + int(layout.dataDirs) + i*8
		binary.LittleEndian.PutUint32(img[entry:], d[0])
		binary.LittleEndian.PutUint32(img[entry+4:], d[1])
	}

	header := optional + optionalSize
	copy(img[header:], ".rdata")
	binary.LittleEndian.PutUint32(img[header+8:], uint32(len(sec.buf)))
	binary.LittleEndian.PutUint32(img[header+12:], peSectionRVA)
	binary.LittleEndian.PutUint32(img[header+16:], uint32(len(sec.buf)))
	binary.LittleEndian.PutUint32(img[header+20:], peSectionRaw)

	return append(img, sec.buf...)
}

type coffSym struct {
	name    string
	section int16
	class   uint8
	aux     int
}

func buildCOFF(machine uint16, syms []coffSym) []byte {
	var table, strtab []byte
	strtab = make([]byte, 4)
	count := 0
	for _, s := range syms {
		entry := make([]byte, coffSymbolSize)
		if len(s.name) <= 8 {
			copy(entry[0:8], s.name)
		} else {
			binary.LittleEndian.PutUint32(entry[4:], uint32(len(strtab)))
			strtab = append(append(strtab, s.name...), 0)
		}
		binary.LittleEndian.PutUint16(entry[12:], uint16(s.section))
		entry[16] = s.class
		entry[17] = uint8(s.aux)
		table = append(table, entry...)
		// Aux records look like garbage externals on purpose.
		for i := 0; i < s.aux; i++ {
			aux := make([]byte, coffSymbolSize)
			copy(aux, "AUXJUNK")
			aux[16] = symClassExtern
			table = append(table, aux...)
		}
		count += 1 + s.aux
	}
	binary.LittleEndian.PutUint32(strtab[0:], uint32(len(strtab)))

	header := make([]byte, coffHeaderSize)
	binary.LittleEndian.PutUint16(header[0:], machine)
	binary.LittleEndian.PutUint32(header[8:], coffHeaderSize)
	binary.LittleEndian.PutUint32(header[12:], uint32(count))

	return append(append(header, table...), strtab...)
}

func archiveHeader(name string, size int) []byte {
	h := fmt.Sprintf("%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "644", size)
	if len(h) != archiveHeaderSize {
		panic("bad archive header length")
	}
	return []byte(h)
}

func buildArchive(memberName string, names []string) []byte {
	var member []byte
	width := 4
	if memberName == "/SYM64/" {
		width = 8
		member = binary.BigEndian.AppendUint64(member, uint64(len(names)))
	} else {
		member = binary.BigEndian.AppendUint32(member, uint32(len(names)))
	}
	member = append(member, make([]byte, width*len(names))...)
	for _, n := range names {
		member = append(append(member, n...), 0)
	}

	out := []byte(archiveMagic)
	out = append(out, archiveHeader(memberName, len(member))...)
	return append(out, member...)
}

type elfSym struct {
	name    string
	bind    elf.SymBind
	typ     elf.SymType
	defined bool
}

// buildELF writes a minimal ELF file with a .strtab and a symbol table of the
// given type. Section 0 is null, 1 is the string table, 2 the symbols.
func buildELF(class elf.Class, order binary.ByteOrder, tableType elf.SectionType, syms []elfSym) []byte {
	strtab := []byte{0}
	var symtab bytes.Buffer

	is64 := class == elf.ELFCLASS64
	writeSym := func(name uint32, info uint8, shndx uint16) {
		if is64 {
			binary.Write(&symtab, order, elf.Sym64{Name: name, Info: info, Shndx: shndx})
		} else {
			binary.Write(&symtab, order, elf.Sym32{Name: name, Info: info, Shndx: shndx})
		}
	}

	writeSym(0, 0, 0)
	for _, s := range syms {
		off := uint32(len(strtab))
		strtab = append(append(strtab, s.name...), 0)
		shndx := uint16(elf.SHN_UNDEF)
		if s.defined {
			shndx = 5
		}
		writeSym(off, elf.ST_INFO(s.bind, s.typ), shndx)
	}

	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(class), 0, byte(elf.EV_CURRENT)}
	if order == binary.BigEndian {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}

	var out bytes.Buffer
	headerSize := 52
	sectionSize := 40
	symSize := elf.Sym32Size
	if is64 {
		headerSize, sectionSize, symSize = 64, 64, elf.Sym64Size
	}
	strOff := headerSize
	symOff := strOff + len(strtab)
	shOff := symOff + symtab.Len()

	type sect struct {
		typ                    elf.SectionType
		off, size, link, entsz int
	}
	sects := []sect{
		{},
		{typ: elf.SHT_STRTAB, off: strOff, size: len(strtab)},
		{typ: tableType, off: symOff, size: symtab.Len(), link: 1, entsz: symSize},
	}

	if is64 {
		binary.Write(&out, order, elf.Header64{
			Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(elf.EM_X86_64), Version: uint32(elf.EV_CURRENT),
			Shoff: uint64(shOff), Ehsize: uint16(headerSize), Shentsize: uint16(sectionSize), Shnum: uint16(len(sects)),
		})
	} else {
		binary.Write(&out, order, elf.Header32{
			Ident: ident, Type: uint16(elf.ET_DYN), Machine: uint16(elf.EM_PPC), Version: uint32(elf.EV_CURRENT),
			Shoff: uint32(shOff), Ehsize: uint16(headerSize), Shentsize: uint16(sectionSize), Shnum: uint16(len(sects)),
		})
	}
	out.Write(strtab)
	out.Write(symtab.Bytes())
	for _, s := range sects {
		if is64 {
			binary.Write(&out, order, elf.Section64{
				Type: uint32(s.typ), Off: uint64(s.off), Size: uint64(s.size), Link: uint32(s.link), Entsize: uint64(s.entsz),
			})
		} else {
			binary.Write(&out, order, elf.Section32{
				Type: uint32(s.typ), Off: uint32(s.off), Size: uint32(s.size), Link: uint32(s.link), Entsize: uint32(s.entsz),
			})
		}
	}
	return out.Bytes()
}

// elfSectionTable returns the section header offset of an ELF file built by
// buildELF and the file offset of its e_shnum field.
func elfSectionTable(data []byte, class elf.Class, order binary.ByteOrder) (shoff uint64, countAt int) {
	if class == elf.ELFCLASS64 {
		return order.Uint64(data[40:]), 60
	}
	return uint64(order.Uint32(data[32:])), 48
}

// withExtendedNumbering moves the section count into the size field of
// section 0 and zeroes e_shnum.
func withExtendedNumbering(data []byte, class elf.Class, order binary.ByteOrder) []byte {
	shoff, countAt := elfSectionTable(data, class, order)
	count := order.Uint16(data[countAt:])
	order.PutUint16(data[countAt:], 0)
	if class == elf.ELFCLASS64 {
		order.PutUint64(data[shoff+32:], uint64(count))
	} else {
		order.PutUint32(data[shoff+20:], uint32(count))
	}
	return data
}

// withSymbolTableLink points the sh_link of the symbol table (section 2) at
// another section.
func withSymbolTableLink(data []byte, class elf.Class, order binary.ByteOrder, link uint32) []byte {
	shoff, _ := elfSectionTable(data, class, order)
	if class == elf.ELFCLASS64 {
		order.PutUint32(data[shoff+2*64+40:], link)
	} else {
		order.PutUint32(data[shoff+2*40+24:], link)
	}
	return data
}
