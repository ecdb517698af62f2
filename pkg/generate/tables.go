package generate

import (
	"debug/elf"

	"recomp/pkg/chunk"
	relf "recomp/pkg/elf"
	"recomp/pkg/utils"
)

// StringTableSection interns NUL-terminated strings. Offset 0 is the empty
// string.
type StringTableSection struct {
	*Section
	offsets map[string]uint32
}

func NewStringTableSection(name string) *StringTableSection {
	s := &StringTableSection{
		Section: NewSectionWithShdr(name, elf.SHT_STRTAB, 0),
		offsets: map[string]uint32{"": 0},
	}
	s.AddNullBytes(1)
	return s
}

func (s *StringTableSection) Intern(str string) uint32 {
	if offset, ok := s.offsets[str]; ok {
		return offset
	}
	offset := uint32(s.AddString(str, true))
	s.offsets[str] = offset
	return offset
}

// SymbolTableSection is keyed by the chunk each symbol describes. The nil
// key is the mandatory null symbol at index 0. Local symbols are kept ahead
// of globals, and sh_info records the first global.
type SymbolTableSection struct {
	*DeferredSection[chunk.Chunk, relf.Sym64]
	strtab      *StringTableSection
	firstGlobal int
}

func NewSymbolTableSection(strtab *StringTableSection) *SymbolTableSection {
	section := NewSectionWithShdr(".symtab", elf.SHT_SYMTAB, 0)
	section.SetSectionLink(strtab.Section)
	section.SetShdrEntSize(uint64(relf.SymbolSize))
	section.SetShdrAlign(8)

	s := &SymbolTableSection{
		DeferredSection: NewDeferredSection[chunk.Chunk, relf.Sym64](section),
		strtab:          strtab,
	}
	s.Insert(0, nil, relf.Sym64{})
	s.firstGlobal = 1
	return s
}

func (s *SymbolTableSection) AddChunkSymbol(c chunk.Chunk, typ elf.SymType, bind elf.SymBind) *relf.Sym64 {
	sym := relf.Sym64{
		Name:  s.strtab.Intern(c.GetName()),
		Shndx: uint16(elf.SHN_ABS),
	}
	sym.SetInfo(typ, bind)
	if bind == elf.STB_LOCAL {
		stored := s.Insert(s.firstGlobal, c, sym)
		s.firstGlobal++
		return stored
	}
	return s.AddKeyValue(c, sym)
}

func (s *SymbolTableSection) GetFirstGlobal() int {
	return s.firstGlobal
}

// ResolveAddresses copies final chunk addresses and sizes into the records.
// sectionIndex maps a chunk to the header index of the section holding it,
// or 0 for an absolute symbol.
func (s *SymbolTableSection) ResolveAddresses(sectionIndex func(c chunk.Chunk) int) {
	for _, c := range s.Keys() {
		if c == nil {
			continue
		}
		sym := s.FindValue(c)
		sym.Value = c.GetAddress()
		if sym.Type() != elf.STT_NOTYPE {
			sym.Size = c.GetSize()
		}
		if idx := sectionIndex(c); idx > 0 {
			sym.Shndx = uint16(idx)
		}
	}
	s.SetShdrInfo(uint32(s.firstGlobal))
}

// ShdrTableSection is the section header table, keyed by the section each
// header describes. The nil key is the null header.
type ShdrTableSection struct {
	*DeferredSection[*Section, relf.SectionHeader]
}

func NewShdrTableSection() *ShdrTableSection {
	section := NewSection("=shdr")
	section.SetShdrAlign(8)
	s := &ShdrTableSection{
		DeferredSection: NewDeferredSection[*Section, relf.SectionHeader](section),
	}
	s.Insert(0, nil, relf.SectionHeader{})
	return s
}

// AddSection reserves a header for o and numbers o after its position in
// the table.
func (s *ShdrTableSection) AddSection(o OutputSection) {
	section := o.GetSection()
	s.AddKeyValue(section, relf.SectionHeader{})
	section.SetShdrIndex(s.FindIndex(section))
}

// ResolveHeaders rebuilds every header from its section's final placement.
func (s *ShdrTableSection) ResolveHeaders(list *SectionList, shstrtab *StringTableSection) {
	for _, key := range s.Keys() {
		if key == nil {
			continue
		}
		*s.FindValue(key) = MakeShdr(list.Of(key), shstrtab.Intern(key.GetName()))
	}
}

// PhdrTableSection is the program header table. Entries are reserved before
// layout so the table's size is known, then filled in afterwards.
type PhdrTableSection struct {
	*SimpleDeferredSection[relf.ProgramHeader]
	segments map[*relf.ProgramHeader][]*Section
}

func NewPhdrTableSection() *PhdrTableSection {
	section := NewSection("=phdr")
	section.SetShdrAlign(8)
	return &PhdrTableSection{
		SimpleDeferredSection: NewSimpleDeferredSection[relf.ProgramHeader](section),
		segments:              make(map[*relf.ProgramHeader][]*Section),
	}
}

// AddSegment reserves a header covering sections, which must be laid out
// contiguously.
func (p *PhdrTableSection) AddSegment(typ elf.ProgType, sections ...*Section) *relf.ProgramHeader {
	utils.Assert(len(sections) > 0, "segment without sections")
	phdr := p.AddValue(relf.ProgramHeader{Type: uint32(typ)})
	p.segments[phdr] = sections
	return phdr
}

func ToPhdrFlags(s *Section) uint32 {
	ret := uint32(elf.PF_R)
	if s.shdrFlags&elf.SHF_WRITE != 0 {
		ret |= uint32(elf.PF_W)
	}
	if s.shdrFlags&elf.SHF_EXECINSTR != 0 {
		ret |= uint32(elf.PF_X)
	}
	return ret
}

// ResolveSegments fills each reserved header from its sections' placement.
func (p *PhdrTableSection) ResolveSegments(list *SectionList, pageAlign uint64) {
	for _, phdr := range p.Values() {
		sections := p.segments[phdr]
		first := sections[0]

		phdr.Flags = ToPhdrFlags(first)
		phdr.Offset = first.offset
		phdr.VAddr = first.address
		phdr.PAddr = first.address
		phdr.Align = first.shdrAlign
		if elf.ProgType(phdr.Type) == elf.PT_LOAD && pageAlign > phdr.Align {
			phdr.Align = pageAlign
		}

		for _, s := range sections {
			end := s.address + list.Of(s).GetSize()
			if s.shdrAlign > phdr.Align {
				phdr.Align = s.shdrAlign
			}
			if !s.IsNobits() {
				phdr.FileSize = end - phdr.VAddr
			}
			phdr.MemSize = end - phdr.VAddr
		}
	}
}
