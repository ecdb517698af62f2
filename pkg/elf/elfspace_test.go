package elf_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"recomp/pkg/chunk"
	relf "recomp/pkg/elf"
	"recomp/pkg/generate"
)

type function struct {
	Name    string
	Address uint64
	Size    uint64
}

// generateImage writes a small module out through ElfGen so the loader has a
// real image to read.
func generateImage(t *testing.T) []byte {
	t.Helper()
	m := chunk.NewModule()
	functions := chunk.NewFunctionList()
	regions := chunk.NewDataRegionList()
	markers := chunk.NewMarkerList()
	for _, err := range []error{m.SetFunctionList(functions), m.SetDataRegionList(regions), m.SetMarkerList(markers)} {
		if err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []function{{"_start", 0x401000, 0x10}, {"compute", 0x401010, 0x30}, {"__compute", 0x401010, 0x30}} {
		fn := chunk.NewFunction(f.Name)
		fn.SetPosition(chunk.NewAbsolutePosition(f.Address))
		fn.SetSize(f.Size)
		functions.AddFunction(fn)
	}

	data := chunk.NewDataRegion(".data")
	data.SetPosition(chunk.NewAbsolutePosition(0x402000))
	data.SetPermissions(chunk.PermRead | chunk.PermWrite)
	data.SetData([]byte("hello\x00\x00\x00"))
	regions.AddDataRegion(data)
	bss := chunk.NewDataRegion(".bss")
	bss.SetPosition(chunk.NewAbsolutePosition(0x403000))
	bss.SetPermissions(chunk.PermRead | chunk.PermWrite)
	bss.SetSize(0x40)
	regions.AddDataRegion(bss)

	bssStart := chunk.NewMarker("__bss_start")
	bssStart.SetBase(bss, 0)
	markers.AddMarker(bssStart)
	end := chunk.NewMarker("_end")
	end.SetBase(bss, 0x40)
	markers.AddMarker(end)

	image, err := generate.NewElfGen(m, 0x400000, 0x1000).Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	return image
}

func TestBuildModuleFromImage(t *testing.T) {
	elfMap, err := relf.NewElfMap("/tmp/out/prog", generateImage(t))
	if err != nil {
		t.Fatalf("NewElfMap() failed: %v", err)
	}
	space := relf.NewElfSpace(elfMap)
	if space.IsSharedLibrary() || space.ShortName() != "prog" {
		t.Errorf("IsSharedLibrary() = %v, ShortName() = %q", space.IsSharedLibrary(), space.ShortName())
	}

	module, err := space.BuildModule()
	if err != nil {
		t.Fatalf("BuildModule() failed: %v", err)
	}
	if module.GetName() != "module-main" || space.GetModule() != module {
		t.Errorf("module name = %q", module.GetName())
	}
	if module.GetImageSource() != chunk.ImageSource(space) {
		t.Errorf("module image source is not the space")
	}

	var got []function
	for _, f := range module.GetFunctionList().Functions() {
		got = append(got, function{f.GetName(), f.GetAddress(), f.GetSize()})
	}
	// __compute shares compute's address and is dropped as an alias.
	want := []function{{"_start", 0x401000, 0x10}, {"compute", 0x401010, 0x30}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("functions mismatch (-want +got):\n%s", diff)
	}
	if l := module.GetFunctionList(); l.GetAddress() != 0x401000 || l.GetSize() != 0x40 {
		t.Errorf("function list hull = %#x+%#x", l.GetAddress(), l.GetSize())
	}

	regions := module.GetDataRegionList().DataRegions()
	if len(regions) != 2 {
		t.Fatalf("got %d data regions, want 2", len(regions))
	}
	if diff := cmp.Diff([]byte("hello\x00\x00\x00"), regions[0].GetData()); diff != "" {
		t.Errorf(".data contents mismatch (-want +got):\n%s", diff)
	}
	if !regions[1].IsBSSOnly() || regions[1].GetSize() != 0x40 || regions[1].GetAddress() != 0x403000 {
		t.Errorf(".bss = %#x+%#x", regions[1].GetAddress(), regions[1].GetSize())
	}
	if regions[0].GetPermissions() != chunk.PermRead|chunk.PermWrite {
		t.Errorf(".data permissions = %#x", regions[0].GetPermissions())
	}

	markers := module.GetMarkerList().Markers()
	if len(markers) != 2 {
		t.Fatalf("got %d markers, want 2", len(markers))
	}
	for i, want := range []struct {
		name   string
		offset uint64
	}{{"__bss_start", 0}, {"_end", 0x40}} {
		m := markers[i]
		if m.GetName() != want.name || m.GetBase() != chunk.Chunk(regions[1]) || m.GetOffset() != want.offset {
			t.Errorf("marker %d = %s at base %v + %#x", i, m.GetName(), m.GetBase(), m.GetOffset())
		}
	}
}
