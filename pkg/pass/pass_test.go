package pass

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"recomp/pkg/chunk"
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	module *chunk.Module
	main   *chunk.Function
	helper *chunk.Function
	puts   *chunk.PLTTrampoline
	data   *chunk.DataRegion
	bss    *chunk.DataRegion
	end    *chunk.Marker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{module: chunk.NewModule()}
	f.module.SetImageSource(nil)

	functions := chunk.NewFunctionList()
	must(t, f.module.SetFunctionList(functions))
	f.main = chunk.NewFunction("main")
	f.main.SetSize(0x24)
	functions.AddFunction(f.main)
	f.helper = chunk.NewFunction("helper")
	f.helper.SetPosition(chunk.NewAbsolutePosition(0x9000))
	f.helper.SetSize(0x10)
	functions.AddFunction(f.helper)

	plt := chunk.NewPLTList()
	must(t, f.module.SetPLTList(plt))
	f.puts = chunk.NewPLTTrampoline("puts")
	f.puts.SetTarget(f.helper)
	plt.AddTrampoline(f.puts)

	tables := chunk.NewJumpTableList()
	must(t, f.module.SetJumpTableList(tables))
	table := chunk.NewJumpTable("main.jt0")
	table.SetFunction(f.main)
	table.AddTarget(f.helper)
	tables.AddJumpTable(table)

	regions := chunk.NewDataRegionList()
	must(t, f.module.SetDataRegionList(regions))
	f.data = chunk.NewDataRegion(".data")
	f.data.SetPermissions(chunk.PermRead | chunk.PermWrite)
	f.data.SetData([]byte{1, 2, 3})
	regions.AddDataRegion(f.data)
	f.bss = chunk.NewDataRegion(".bss")
	f.bss.SetPermissions(chunk.PermRead | chunk.PermWrite)
	f.bss.SetSize(0x20)
	regions.AddDataRegion(f.bss)

	markers := chunk.NewMarkerList()
	must(t, f.module.SetMarkerList(markers))
	f.end = chunk.NewMarker("_end")
	f.end.SetBase(f.bss, 0x20)
	markers.AddMarker(f.end)
	return f
}

func TestLayoutPass(t *testing.T) {
	f := newFixture(t)
	p := NewLayoutPass(0x401000)
	f.module.Accept(p)

	got := map[string]uint64{
		"main":   f.main.GetAddress(),
		"helper": f.helper.GetAddress(),
		"puts":   f.puts.GetAddress(),
	}
	want := map[string]uint64{"main": 0x401000, "helper": 0x401030, "puts": 0x401040}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("addresses mismatch (-want +got):\n%s", diff)
	}
	if f.puts.GetSize() != PLTEntrySize || p.End() != 0x401050 {
		t.Errorf("PLT size = %#x, End() = %#x", f.puts.GetSize(), p.End())
	}
	functions := f.module.GetFunctionList()
	if functions.GetAddress() != 0x401000 || functions.GetSize() != 0x40 {
		t.Errorf("function hull = %#x+%#x", functions.GetAddress(), functions.GetSize())
	}
	if f.data.HasPosition() {
		t.Errorf("layout touched data regions")
	}
}

func TestFixDataRegionsPass(t *testing.T) {
	f := newFixture(t)
	layout := NewLayoutPass(0x401000)
	f.module.Accept(layout)
	f.module.Accept(NewFixDataRegionsPass(layout.End(), 0x1000))

	if f.data.GetAddress() != 0x402000 || f.bss.GetAddress() != 0x403000 {
		t.Errorf("regions at %#x and %#x", f.data.GetAddress(), f.bss.GetAddress())
	}
	if _, ok := f.bss.GetPosition().(*chunk.OffsetPosition); !ok {
		t.Errorf("region position is %T, want an offset position", f.bss.GetPosition())
	}
	if f.end.GetAddress() != 0x403020 {
		t.Errorf("_end = %#x, want 0x403020", f.end.GetAddress())
	}
	if got := f.module.GetDataRegionList().GetSize(); got != 0x1020 {
		t.Errorf("region list size = %#x, want 0x1020", got)
	}

	f.module.GetDataRegionList().SetPosition(chunk.NewAbsolutePosition(0x500000))
	if f.end.GetAddress() != 0x501020 {
		t.Errorf("_end did not follow its region: %#x", f.end.GetAddress())
	}
}

func TestFixDataRegionsPassRejectsBadAlignment(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("NewFixDataRegionsPass(0x1800) did not panic")
		}
	}()
	NewFixDataRegionsPass(0, 0x1800)
}

func TestDumpCoversEveryKind(t *testing.T) {
	f := newFixture(t)
	root := Dump(f.module)

	var lines []string
	for _, item := range root.LeveledList() {
		lines = append(lines, strings.Repeat(" ", item.Level)+item.Text)
	}
	want := []string{
		"Module module-main size=0x0",
		" FunctionList functions size=0x34",
		"  Function main size=0x24",
		"  Function helper @0x9000 size=0x10",
		" PLTList plt size=0x0",
		"  PLTTrampoline puts@plt size=0x0 -> helper",
		" JumpTableList jumptables size=0x0",
		"  JumpTable main.jt0 size=0x0 in main entries=[helper]",
		" DataRegionList dataregions size=0x23",
		"  DataRegion .data size=0x3 perm=rw- data=3",
		"  DataRegion .bss size=0x20 perm=rw- data=0",
		" MarkerList markers size=0x0",
		"  Marker _end size=0x0 = .bss+0x20",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
	if root.LeveledList()[0] != (pterm.LeveledListItem{Level: 0, Text: want[0]}) {
		t.Errorf("root item = %+v", root.LeveledList()[0])
	}
}

func TestDumpYAML(t *testing.T) {
	f := newFixture(t)
	out, err := Dump(f.module).YAML()
	if err != nil {
		t.Fatalf("YAML() failed: %v", err)
	}
	var back DumpNode
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() failed: %v", err)
	}
	if diff := cmp.Diff(Dump(f.module), &back); diff != "" {
		t.Errorf("YAML round trip mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(out), "address: \"0x9000\"") && !strings.Contains(string(out), "address: 0x9000") {
		t.Errorf("YAML missing helper address:\n%s", out)
	}
}
