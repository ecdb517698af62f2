// Package generate lays out and writes ELF images. Sections whose contents
// depend on values known only after layout defer their encoding until
// CommitValues.
package generate

import (
	"debug/elf"
	"fmt"

	relf "recomp/pkg/elf"
	"recomp/pkg/utils"
)

// OutputSection is anything the section list can lay out and write.
type OutputSection interface {
	GetSection() *Section
	GetSize() uint64
	CommitValues()
}

// Section is a named byte buffer with an optional section header
// description. Its placement is filled in by SectionList.Layout.
type Section struct {
	name    string
	data    []byte
	address uint64
	offset  uint64

	withShdr    bool
	shdrType    elf.SectionType
	shdrFlags   elf.SectionFlag
	shdrInfo    uint32
	shdrEntSize uint64
	shdrAlign   uint64
	sectionLink *Section
	shdrIndex   int

	// nobitsSize is the memory size of an SHT_NOBITS section.
	nobitsSize uint64
}

// NewSection creates a section that occupies file space but has no section
// header, such as the ELF header or the program header table.
func NewSection(name string) *Section {
	return &Section{name: name, shdrIndex: -1, shdrAlign: 1}
}

func NewSectionWithShdr(name string, typ elf.SectionType, flags elf.SectionFlag) *Section {
	s := NewSection(name)
	s.withShdr = true
	s.shdrType = typ
	s.shdrFlags = flags
	return s
}

func (s *Section) GetSection() *Section { return s }

func (s *Section) GetName() string { return s.name }

func (s *Section) GetData() []byte { return s.data }

func (s *Section) GetAddress() uint64 { return s.address }

func (s *Section) SetAddress(address uint64) { s.address = address }

func (s *Section) GetOffset() uint64 { return s.offset }

func (s *Section) SetOffset(offset uint64) { s.offset = offset }

func (s *Section) HasShdr() bool { return s.withShdr }

func (s *Section) GetShdrType() elf.SectionType { return s.shdrType }

func (s *Section) GetShdrFlags() elf.SectionFlag { return s.shdrFlags }

func (s *Section) IsAlloc() bool { return s.shdrFlags&elf.SHF_ALLOC != 0 }

func (s *Section) IsNobits() bool { return s.shdrType == elf.SHT_NOBITS }

func (s *Section) SetShdrInfo(info uint32) { s.shdrInfo = info }

func (s *Section) SetShdrEntSize(size uint64) { s.shdrEntSize = size }

func (s *Section) GetShdrAlign() uint64 { return s.shdrAlign }

func (s *Section) SetShdrAlign(align uint64) {
	utils.Assert(align != 0 && align&(align-1) == 0, "alignment %d of %s is not a power of two", align, s.name)
	s.shdrAlign = align
}

func (s *Section) GetSectionLink() *Section { return s.sectionLink }

func (s *Section) SetSectionLink(link *Section) { s.sectionLink = link }

// GetShdrIndex is -1 until the section list numbers the headers.
func (s *Section) GetShdrIndex() int { return s.shdrIndex }

func (s *Section) SetShdrIndex(index int) { s.shdrIndex = index }

// Add appends raw bytes and returns the offset they landed at.
func (s *Section) Add(data []byte) uint64 {
	offset := uint64(len(s.data))
	s.data = append(s.data, data...)
	return offset
}

func (s *Section) AddString(str string, withNull bool) uint64 {
	offset := s.Add([]byte(str))
	if withNull {
		s.data = append(s.data, 0)
	}
	return offset
}

func (s *Section) AddNullBytes(n uint64) uint64 {
	return s.Add(make([]byte, n))
}

func (s *Section) SetNobitsSize(size uint64) {
	utils.Assert(s.IsNobits(), "%s is not SHT_NOBITS", s.name)
	s.nobitsSize = size
}

func (s *Section) GetSize() uint64 {
	if s.IsNobits() {
		return s.nobitsSize
	}
	return uint64(len(s.data))
}

// GetFileSize is the number of bytes the section occupies in the file.
func (s *Section) GetFileSize() uint64 {
	if s.IsNobits() {
		return 0
	}
	return uint64(len(s.data))
}

func (s *Section) CommitValues() {}

func (s *Section) String() string {
	return fmt.Sprintf("%s@%#x(off %#x)", s.name, s.address, s.offset)
}

// MakeShdr describes o as a section header. The size comes from o so that
// deferred sections report their encoded size before commit.
func MakeShdr(o OutputSection, nameIndex uint32) relf.SectionHeader {
	s := o.GetSection()
	utils.Assert(s.withShdr, "%s has no section header", s.name)
	shdr := relf.SectionHeader{
		Name:      nameIndex,
		Type:      uint32(s.shdrType),
		Flags:     uint64(s.shdrFlags),
		Offset:    s.offset,
		Size:      o.GetSize(),
		Info:      s.shdrInfo,
		Addralign: s.shdrAlign,
		Entsize:   s.shdrEntSize,
	}
	if s.IsAlloc() {
		shdr.Addr = s.address
	}
	if s.sectionLink != nil {
		utils.Assert(s.sectionLink.shdrIndex > 0, "%s links to unnumbered %s", s.name, s.sectionLink.name)
		shdr.Link = uint32(s.sectionLink.shdrIndex)
	}
	return shdr
}
