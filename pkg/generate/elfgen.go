package generate

import (
	"debug/elf"

	"github.com/pkg/errors"

	"recomp/pkg/chunk"
	relf "recomp/pkg/elf"
	"recomp/pkg/log"
	"recomp/pkg/utils"
)

var genLog = log.Group("generate")

// ElfGen writes a module back out as an ELF executable: one PT_LOAD per data
// region plus a symbol table naming functions, regions, and markers.
type ElfGen struct {
	module      *chunk.Module
	machine     relf.MachineType
	baseAddress uint64
	pageAlign   uint64

	sections       *SectionList
	ehdr           *Section
	phdrs          *PhdrTableSection
	strtab         *StringTableSection
	symtab         *SymbolTableSection
	shstrtab       *StringTableSection
	shdrs          *ShdrTableSection
	regionSections map[*chunk.DataRegion]*Section
}

func NewElfGen(module *chunk.Module, baseAddress, pageAlign uint64) *ElfGen {
	return &ElfGen{
		module:         module,
		machine:        relf.MachineTypeX86_64,
		baseAddress:    baseAddress,
		pageAlign:      pageAlign,
		sections:       NewSectionList(),
		regionSections: make(map[*chunk.DataRegion]*Section),
	}
}

func (g *ElfGen) SetMachine(m relf.MachineType) {
	g.machine = m
}

func (g *ElfGen) GetSectionList() *SectionList {
	return g.sections
}

func (g *ElfGen) GetSymbolTable() *SymbolTableSection {
	return g.symtab
}

func (g *ElfGen) Generate() ([]byte, error) {
	if g.sections.Len() > 0 {
		return nil, errors.New("generate: image already generated")
	}
	if g.pageAlign == 0 || g.pageAlign&(g.pageAlign-1) != 0 {
		return nil, errors.Errorf("generate: page alignment %#x is not a power of two", g.pageAlign)
	}

	g.ehdr = NewSection("=elfheader")
	g.ehdr.SetShdrAlign(8)
	g.ehdr.AddNullBytes(uint64(relf.ELFHeaderSize))
	g.sections.Add(g.ehdr)

	g.phdrs = NewPhdrTableSection()
	g.sections.Add(g.phdrs)

	if err := g.makeDataSections(); err != nil {
		return nil, err
	}

	g.strtab = NewStringTableSection(".strtab")
	g.symtab = NewSymbolTableSection(g.strtab)
	g.module.Accept(newSymbolCollector(g.symtab))
	g.sections.Add(g.symtab)
	g.sections.Add(g.strtab)

	g.shstrtab = NewStringTableSection(".shstrtab")
	g.sections.Add(g.shstrtab)

	g.shdrs = NewShdrTableSection()
	for _, o := range g.sections.All() {
		if o.GetSection().HasShdr() {
			g.shdrs.AddSection(o)
			g.shstrtab.Intern(o.GetSection().GetName())
		}
	}
	g.sections.Add(g.shdrs)

	fileSize := g.sections.Layout(g.baseAddress, g.pageAlign)
	g.symtab.ResolveAddresses(g.sectionIndexOf)
	g.shdrs.ResolveHeaders(g.sections, g.shstrtab)
	g.phdrs.ResolveSegments(g.sections, g.pageAlign)

	g.sections.CommitValues()
	buf := g.sections.Write(fileSize)
	g.writeEhdr(buf)

	genLog.Logf(1, "%s: %d sections, %d symbols, %d bytes", g.module.GetName(),
		g.shdrs.GetCount()-1, g.symtab.GetCount()-1, len(buf))
	return buf, nil
}

func (g *ElfGen) makeDataSections() error {
	regions := g.module.GetDataRegionList()
	if regions == nil {
		return nil
	}
	for _, region := range regions.DataRegions() {
		if g.sections.Find(region.GetName()) != nil {
			return errors.Errorf("generate: duplicate data region %q", region.GetName())
		}

		flags := elf.SHF_ALLOC
		if region.GetPermissions()&chunk.PermWrite != 0 {
			flags |= elf.SHF_WRITE
		}
		if region.GetPermissions()&chunk.PermExecute != 0 {
			flags |= elf.SHF_EXECINSTR
		}

		if uint64(len(region.GetData())) > region.GetSize() {
			return errors.Errorf("generate: data region %q holds %d bytes but is %#x long",
				region.GetName(), len(region.GetData()), region.GetSize())
		}

		var section *Section
		if region.IsBSSOnly() {
			section = NewSectionWithShdr(region.GetName(), elf.SHT_NOBITS, flags)
			section.SetNobitsSize(region.GetSize())
		} else {
			section = NewSectionWithShdr(region.GetName(), elf.SHT_PROGBITS, flags)
			section.Add(region.GetData())
			section.AddNullBytes(region.GetSize() - uint64(len(region.GetData())))
		}
		section.SetShdrAlign(8)
		if region.HasPosition() {
			section.SetAddress(region.GetAddress())
		}

		g.sections.Add(section)
		g.phdrs.AddSegment(elf.PT_LOAD, section)
		g.regionSections[region] = section
		genLog.Logf(5, "region %s -> %s", region.GetName(), section)
	}
	return nil
}

func (g *ElfGen) sectionIndexOf(c chunk.Chunk) int {
	switch c := c.(type) {
	case *chunk.DataRegion:
		if s := g.regionSections[c]; s != nil {
			return s.GetShdrIndex()
		}
	case *chunk.Marker:
		if region, ok := c.GetBase().(*chunk.DataRegion); ok {
			return g.sectionIndexOf(region)
		}
	}
	return 0
}

func (g *ElfGen) entryAddress() uint64 {
	functions := g.module.GetFunctionList()
	if functions == nil {
		return 0
	}
	for _, name := range []string{"_start", "main"} {
		if f := functions.Find(name); f != nil {
			return f.GetAddress()
		}
	}
	if all := functions.Functions(); len(all) > 0 {
		return all[0].GetAddress()
	}
	return 0
}

func (g *ElfGen) writeEhdr(buf []byte) {
	ehdr := &relf.Header64{}
	relf.WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	ehdr.Ident[elf.EI_OSABI] = 0
	ehdr.Ident[elf.EI_ABIVERSION] = 0

	ehdr.Type = uint16(elf.ET_EXEC)
	ehdr.Machine = uint16(g.machine.Machine())
	ehdr.Version = uint32(elf.EV_CURRENT)
	ehdr.Entry = g.entryAddress()
	if g.phdrs.GetCount() > 0 {
		ehdr.Phoff = g.phdrs.GetOffset()
	}
	ehdr.Shoff = g.shdrs.GetOffset()
	ehdr.Ehsize = uint16(relf.ELFHeaderSize)
	ehdr.Phentsize = uint16(relf.ProgramHeaderSize)
	ehdr.Phnum = uint16(g.phdrs.GetCount())
	ehdr.Shentsize = uint16(relf.SectionHeaderSize)
	ehdr.Shnum = uint16(g.shdrs.GetCount())
	ehdr.Shstrndx = uint16(g.shstrtab.GetShdrIndex())

	utils.Write(buf[g.ehdr.GetOffset():], *ehdr)
}

// symbolCollector names functions and markers globally and data regions
// locally. PLT and jump table entries get no symbols.
type symbolCollector struct {
	chunk.ChunkPass
	symtab *SymbolTableSection
}

func newSymbolCollector(symtab *SymbolTableSection) *symbolCollector {
	p := &symbolCollector{symtab: symtab}
	p.Self = p
	return p
}

func (p *symbolCollector) VisitFunction(f *chunk.Function) {
	p.symtab.AddChunkSymbol(f, elf.STT_FUNC, elf.STB_GLOBAL)
}

func (p *symbolCollector) VisitPLTList(l *chunk.PLTList) {}

func (p *symbolCollector) VisitJumpTableList(l *chunk.JumpTableList) {}

func (p *symbolCollector) VisitDataRegion(d *chunk.DataRegion) {
	p.symtab.AddChunkSymbol(d, elf.STT_OBJECT, elf.STB_LOCAL)
}

func (p *symbolCollector) VisitMarker(m *chunk.Marker) {
	p.symtab.AddChunkSymbol(m, elf.STT_NOTYPE, elf.STB_GLOBAL)
}
