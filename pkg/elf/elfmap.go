package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"recomp/pkg/log"
	"recomp/pkg/utils"
)

var elfLog = log.Group("elf")

// ElfMap is a parsed view over the raw bytes of an ELF64 image. It never
// copies section contents.
type ElfMap struct {
	Path        string
	Contents    []byte
	Ehdr        Header64
	Machine     MachineType
	Sections    []SectionHeader
	ShStrTable  []byte
	SymTable    []Sym64
	SymStrTable []byte
	FirstGlobal int64
}

func NewElfMap(path string, contents []byte) (*ElfMap, error) {
	m := &ElfMap{Path: path, Contents: contents}

	if len(contents) < int(ELFHeaderSize) {
		return nil, errors.Errorf("%s: ELF file too small", path)
	}
	if !CheckMagic(contents) {
		return nil, errors.Errorf("%s: not an ELF file", path)
	}
	m.Machine = GetMachineType(contents)
	if m.Machine == MachineTypeNone {
		return nil, errors.Errorf("%s: unsupported ELF class or machine", path)
	}

	m.Ehdr = utils.Read[Header64](contents)
	if err := m.readSections(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := m.readSymbols(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	elfLog.Logf(1, "%s: %s, %d sections, %d symbols", path, m.Machine, len(m.Sections), len(m.SymTable))
	return m, nil
}

func (m *ElfMap) readSections() error {
	if m.Ehdr.Shoff == 0 {
		return nil
	}
	if uint64(len(m.Contents)) < uint64(SectionHeaderSize) || m.Ehdr.Shoff > uint64(len(m.Contents))-uint64(SectionHeaderSize) {
		return errors.Errorf("section header table out of range: %#x", m.Ehdr.Shoff)
	}

	contents := m.Contents[m.Ehdr.Shoff:]
	first, err := utils.TryRead[SectionHeader](contents)
	if err != nil {
		return err
	}
	sectionNumber := uint64(m.Ehdr.Shnum)
	if sectionNumber == 0 {
		sectionNumber = first.Size
	}
	if sectionNumber > uint64(len(contents))/uint64(SectionHeaderSize) {
		return errors.Errorf("%d section headers do not fit", sectionNumber)
	}

	m.Sections = make([]SectionHeader, 0, sectionNumber)
	for i := uint64(0); i < sectionNumber; i++ {
		m.Sections = append(m.Sections, utils.Read[SectionHeader](contents[i*uint64(SectionHeaderSize):]))
	}

	shstrndx := uint64(m.Ehdr.Shstrndx)
	if shstrndx == uint64(elf.SHN_XINDEX) {
		shstrndx = uint64(first.Link)
	}
	m.ShStrTable, err = m.GetBytesFromIndex(shstrndx)
	return errors.Wrap(err, "section name table")
}

func (m *ElfMap) readSymbols() error {
	symtab := m.FindSectionByType(uint32(elf.SHT_SYMTAB))
	if symtab == nil {
		return nil
	}
	m.FirstGlobal = int64(symtab.Info)

	symContents, err := m.GetBytesFromShdr(symtab)
	if err != nil {
		return errors.Wrap(err, "symbol table")
	}
	symNumber := len(symContents) / int(SymbolSize)
	m.SymTable = make([]Sym64, 0, symNumber)
	for i := 0; i < symNumber; i++ {
		m.SymTable = append(m.SymTable, utils.Read[Sym64](symContents[i*int(SymbolSize):]))
	}

	m.SymStrTable, err = m.GetBytesFromIndex(uint64(symtab.Link))
	return errors.Wrap(err, "symbol name table")
}

func (m *ElfMap) GetBytesFromShdr(hdr *SectionHeader) ([]byte, error) {
	if hdr.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}
	start := hdr.Offset
	end := hdr.Offset + hdr.Size
	if end < start || uint64(len(m.Contents)) < end {
		return nil, errors.Errorf("section header is out of range: %#x+%#x", hdr.Offset, hdr.Size)
	}
	return m.Contents[start:end], nil
}

func (m *ElfMap) GetBytesFromIndex(idx uint64) ([]byte, error) {
	if idx >= uint64(len(m.Sections)) {
		return nil, errors.Errorf("section index %d out of range", idx)
	}
	return m.GetBytesFromShdr(&m.Sections[idx])
}

func (m *ElfMap) SectionName(hdr *SectionHeader) string {
	return GetNameFromTable(m.ShStrTable, hdr.Name)
}

func (m *ElfMap) SymbolName(sym *Sym64) string {
	return GetNameFromTable(m.SymStrTable, sym.Name)
}

func (m *ElfMap) FindSection(name string) *SectionHeader {
	for i := range m.Sections {
		if m.SectionName(&m.Sections[i]) == name {
			return &m.Sections[i]
		}
	}
	return nil
}

func (m *ElfMap) FindSectionByType(type_ uint32) *SectionHeader {
	for i := range m.Sections {
		if m.Sections[i].Type == type_ {
			return &m.Sections[i]
		}
	}
	return nil
}

func (m *ElfMap) IsExecutable() bool {
	return elf.Type(m.Ehdr.Type) == elf.ET_EXEC
}

func (m *ElfMap) IsDynamic() bool {
	return elf.Type(m.Ehdr.Type) == elf.ET_DYN
}
