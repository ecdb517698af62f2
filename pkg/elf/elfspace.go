package elf

import (
	"debug/elf"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"recomp/pkg/chunk"
)

// ElfSpace pairs a mapped image with the module built from it. It is the
// module's image source.
type ElfSpace struct {
	elf    *ElfMap
	module *chunk.Module
}

func NewElfSpace(m *ElfMap) *ElfSpace {
	return &ElfSpace{elf: m}
}

func (s *ElfSpace) GetElfMap() *ElfMap {
	return s.elf
}

func (s *ElfSpace) GetModule() *chunk.Module {
	return s.module
}

// IsSharedLibrary reports a position-independent image without an
// interpreter; a PIE executable carries .interp.
func (s *ElfSpace) IsSharedLibrary() bool {
	return s.elf.IsDynamic() && s.elf.FindSection(".interp") == nil
}

func (s *ElfSpace) ShortName() string {
	if s.elf.Path == "" {
		return ""
	}
	return filepath.Base(s.elf.Path)
}

// BuildModule recovers functions from STT_FUNC symbols, data regions from
// writable allocated sections, and markers from untyped global symbols that
// land inside or at the end of a region.
func (s *ElfSpace) BuildModule() (*chunk.Module, error) {
	module := chunk.NewModule()
	module.SetImageSource(s)

	functions := chunk.NewFunctionList()
	if err := module.SetFunctionList(functions); err != nil {
		return nil, err
	}
	s.buildFunctions(functions)

	regions := chunk.NewDataRegionList()
	if err := module.SetDataRegionList(regions); err != nil {
		return nil, err
	}
	if err := s.buildDataRegions(regions); err != nil {
		return nil, err
	}

	markers := chunk.NewMarkerList()
	if err := module.SetMarkerList(markers); err != nil {
		return nil, err
	}
	s.buildMarkers(regions, markers)

	chunk.UpdateHull(functions)
	chunk.UpdateHull(regions)
	elfLog.Logf(1, "%s: %d functions, %d data regions, %d markers", module.GetName(),
		functions.GetChildren().Len(), regions.GetChildren().Len(), markers.GetChildren().Len())

	s.module = module
	return module, nil
}

func (s *ElfSpace) definedSymbols(match func(sym *Sym64) bool) []*Sym64 {
	var out []*Sym64
	for i := range s.elf.SymTable {
		sym := &s.elf.SymTable[i]
		if i == 0 || sym.IsUndef() || s.elf.SymbolName(sym) == "" {
			continue
		}
		if match(sym) {
			out = append(out, sym)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out
}

func (s *ElfSpace) buildFunctions(functions *chunk.FunctionList) {
	syms := s.definedSymbols(func(sym *Sym64) bool {
		return sym.Type() == elf.STT_FUNC
	})
	seen := make(map[uint64]string)
	for _, sym := range syms {
		name := s.elf.SymbolName(sym)
		if functions.Find(name) != nil {
			elfLog.Logf(5, "skipping duplicate function symbol %s", name)
			continue
		}
		if alias, ok := seen[sym.Value]; ok {
			elfLog.Logf(5, "skipping %s, an alias of %s", name, alias)
			continue
		}
		seen[sym.Value] = name
		f := chunk.NewFunction(name)
		f.SetPosition(chunk.NewAbsolutePosition(sym.Value))
		f.SetSize(sym.Size)
		functions.AddFunction(f)
	}
}

func (s *ElfSpace) buildDataRegions(regions *chunk.DataRegionList) error {
	for i := range s.elf.Sections {
		shdr := &s.elf.Sections[i]
		if !shdr.HasFlag(elf.SHF_ALLOC) || !shdr.HasFlag(elf.SHF_WRITE) || shdr.Size == 0 {
			continue
		}
		data, err := s.elf.GetBytesFromShdr(shdr)
		if err != nil {
			return errors.Wrapf(err, "data region %s", s.elf.SectionName(shdr))
		}

		region := chunk.NewDataRegion(s.elf.SectionName(shdr))
		region.SetPosition(chunk.NewAbsolutePosition(shdr.Addr))
		region.SetPermissions(ToPermissions(shdr))
		region.SetSize(shdr.Size)
		if len(data) > 0 {
			region.SetData(append([]byte(nil), data...))
		}
		regions.AddDataRegion(region)
	}
	return nil
}

func (s *ElfSpace) buildMarkers(regions *chunk.DataRegionList, markers *chunk.MarkerList) {
	syms := s.definedSymbols(func(sym *Sym64) bool {
		return sym.Type() == elf.STT_NOTYPE && sym.Bind() == elf.STB_GLOBAL
	})
	for _, sym := range syms {
		region := findRegionFor(regions, sym.Value)
		if region == nil {
			continue
		}
		marker := chunk.NewMarker(s.elf.SymbolName(sym))
		marker.SetBase(region, sym.Value-region.GetAddress())
		markers.AddMarker(marker)
	}
}

// findRegionFor also accepts the one-past-the-end address, where symbols
// like _end live.
func findRegionFor(regions *chunk.DataRegionList, address uint64) *chunk.DataRegion {
	if region := regions.FindContaining(address); region != nil {
		return region
	}
	for _, region := range regions.DataRegions() {
		if region.HasPosition() && region.GetAddress()+region.GetSize() == address {
			return region
		}
	}
	return nil
}

// ToPermissions maps section flags onto data region permission bits.
func ToPermissions(shdr *SectionHeader) uint32 {
	perm := chunk.PermRead
	if shdr.HasFlag(elf.SHF_WRITE) {
		perm |= chunk.PermWrite
	}
	if shdr.HasFlag(elf.SHF_EXECINSTR) {
		perm |= chunk.PermExecute
	}
	return perm
}
