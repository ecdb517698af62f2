package elf

import (
	"debug/elf"
	"testing"

	"recomp/pkg/utils"
)

func TestGetNameFromTable(t *testing.T) {
	table := []byte("\x00foo\x00bar")
	for _, tc := range []struct {
		offset uint32
		want   string
	}{
		{0, ""},
		{1, "foo"},
		{5, "bar"},
		{100, ""},
	} {
		if got := GetNameFromTable(table, tc.offset); got != tc.want {
			t.Errorf("GetNameFromTable(%d) = %q, want %q", tc.offset, got, tc.want)
		}
	}
}

func header(machine elf.Machine) []byte {
	ehdr := Header64{Machine: uint16(machine), Type: uint16(elf.ET_EXEC)}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	return utils.Encode(ehdr)
}

func TestGetMachineType(t *testing.T) {
	for _, tc := range []struct {
		machine elf.Machine
		want    MachineType
	}{
		{elf.EM_X86_64, MachineTypeX86_64},
		{elf.EM_AARCH64, MachineTypeAArch64},
		{elf.EM_RISCV, MachineTypeRISCV64},
		{elf.EM_386, MachineTypeNone},
	} {
		if got := GetMachineType(header(tc.machine)); got != tc.want {
			t.Errorf("GetMachineType(%v) = %v, want %v", tc.machine, got, tc.want)
		}
		if tc.want != MachineTypeNone && tc.want.Machine() != tc.machine {
			t.Errorf("%v.Machine() = %v", tc.want, tc.want.Machine())
		}
	}
	if GetMachineType([]byte("nope")) != MachineTypeNone {
		t.Errorf("GetMachineType accepted garbage")
	}
}

func TestNewElfMapRejectsBadInput(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		contents []byte
	}{
		{"too small", []byte{0x7f, 'E', 'L', 'F'}},
		{"bad magic", make([]byte, 64)},
		{"unsupported machine", header(elf.EM_386)},
		{"section table out of range", func() []byte {
			b := header(elf.EM_X86_64)
			ehdr := utils.Read[Header64](b)
			ehdr.Shoff = 0x1000
			ehdr.Shnum = 1
			return utils.Encode(ehdr)
		}()},
		{"section table offset wraps", func() []byte {
			b := header(elf.EM_X86_64)
			ehdr := utils.Read[Header64](b)
			ehdr.Shoff = ^uint64(0) - 8
			ehdr.Shnum = 1
			return append(utils.Encode(ehdr), make([]byte, 192)...)
		}()},
		{"section count wraps", func() []byte {
			b := header(elf.EM_X86_64)
			ehdr := utils.Read[Header64](b)
			ehdr.Shoff = uint64(ELFHeaderSize)
			ehdr.Shnum = 0
			return append(utils.Encode(ehdr), utils.Encode(SectionHeader{Size: 1 << 60})...)
		}()},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			if _, err := NewElfMap("bad", tc.contents); err == nil {
				t.Errorf("NewElfMap() succeeded")
			}
		})
	}
}

func TestNewElfMapHeaderOnly(t *testing.T) {
	m, err := NewElfMap("hdr", header(elf.EM_AARCH64))
	if err != nil {
		t.Fatalf("NewElfMap() failed: %v", err)
	}
	if m.Machine != MachineTypeAArch64 || len(m.Sections) != 0 || len(m.SymTable) != 0 {
		t.Errorf("map = %v, %d sections, %d symbols", m.Machine, len(m.Sections), len(m.SymTable))
	}
	if !m.IsExecutable() || m.IsDynamic() {
		t.Errorf("file type misreported")
	}
}
