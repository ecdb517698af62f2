package elf

import (
	"bytes"
	"debug/elf"
	"unsafe"
)

type Header64 struct {
	Ident     [16]byte /* File identification. */
	Type      uint16   /* File type. */
	Machine   uint16   /* Machine architecture. */
	Version   uint32   /* ELF format version. */
	Entry     uint64   /* Entry point. */
	Phoff     uint64   /* Program header file offset. */
	Shoff     uint64   /* Section header file offset. */
	Flags     uint32   /* Architecture-specific flags. */
	Ehsize    uint16   /* Size of ELF header in bytes. */
	Phentsize uint16   /* Size of program header entry. */
	Phnum     uint16   /* Number of program header entries. */
	Shentsize uint16   /* Size of section header entry. */
	Shnum     uint16   /* Number of section header entries. */
	Shstrndx  uint16   /* Section name strings section. */
}

type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type ProgramHeader struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

type Sym64 struct {
	Name  uint32 /* String table index of name. */
	Info  uint8  /* Type and binding information. */
	Other uint8  /* Reserved (not used). */
	Shndx uint16 /* Section index of symbol. */
	Value uint64 /* Symbol value. */
	Size  uint64 /* Size of associated object. */
}

const ELFHeaderSize = unsafe.Sizeof(Header64{})
const SectionHeaderSize = unsafe.Sizeof(SectionHeader{})
const ProgramHeaderSize = unsafe.Sizeof(ProgramHeader{})
const SymbolSize = unsafe.Sizeof(Sym64{})

func (s *Sym64) Type() elf.SymType {
	return elf.ST_TYPE(s.Info)
}

func (s *Sym64) Bind() elf.SymBind {
	return elf.ST_BIND(s.Info)
}

func (s *Sym64) IsUndef() bool {
	return s.Shndx == uint16(elf.SHN_UNDEF)
}

func (s *Sym64) IsAbs() bool {
	return s.Shndx == uint16(elf.SHN_ABS)
}

func (s *Sym64) SetInfo(typ elf.SymType, bind elf.SymBind) {
	s.Info = elf.ST_INFO(bind, typ)
}

func (h *SectionHeader) HasFlag(flag elf.SectionFlag) bool {
	return h.Flags&uint64(flag) != 0
}

func CheckMagic(contents []byte) bool {
	return bytes.HasPrefix(contents, []byte(elf.ELFMAG))
}

func WriteMagic(contents []byte) {
	copy(contents, elf.ELFMAG)
}

// GetNameFromTable reads the NUL-terminated string at offset. Offsets past
// the table yield "".
func GetNameFromTable(strTable []byte, offset uint32) string {
	if uint64(offset) >= uint64(len(strTable)) {
		return ""
	}
	rest := strTable[offset:]
	if length := bytes.IndexByte(rest, 0); length >= 0 {
		rest = rest[:length]
	}
	return string(rest)
}
