package elf

import (
	"debug/elf"
)

type MachineType uint8

const (
	MachineTypeNone MachineType = iota
	MachineTypeX86_64
	MachineTypeAArch64
	MachineTypeRISCV64
)

// GetMachineType recognizes the 64-bit little-endian targets we can load.
func GetMachineType(contents []byte) MachineType {
	if !CheckMagic(contents) || len(contents) < 20 {
		return MachineTypeNone
	}
	if elf.Class(contents[elf.EI_CLASS]) != elf.ELFCLASS64 ||
		elf.Data(contents[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return MachineTypeNone
	}
	switch elf.Machine(uint16(contents[18]) | uint16(contents[19])<<8) {
	case elf.EM_X86_64:
		return MachineTypeX86_64
	case elf.EM_AARCH64:
		return MachineTypeAArch64
	case elf.EM_RISCV:
		return MachineTypeRISCV64
	}
	return MachineTypeNone
}

// Machine is the e_machine value for m.
func (m MachineType) Machine() elf.Machine {
	switch m {
	case MachineTypeX86_64:
		return elf.EM_X86_64
	case MachineTypeAArch64:
		return elf.EM_AARCH64
	case MachineTypeRISCV64:
		return elf.EM_RISCV
	}
	return elf.EM_NONE
}

func (m MachineType) String() string {
	switch m {
	case MachineTypeX86_64:
		return "x86_64"
	case MachineTypeAArch64:
		return "aarch64"
	case MachineTypeRISCV64:
		return "riscv64"
	}
	return "none"
}

func ParseMachineType(s string) (MachineType, bool) {
	for _, m := range []MachineType{MachineTypeX86_64, MachineTypeAArch64, MachineTypeRISCV64} {
		if m.String() == s {
			return m, true
		}
	}
	return MachineTypeNone, false
}
