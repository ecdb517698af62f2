package chunk

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"recomp/pkg/archive"
)

func roundTrip(t *testing.T, root Chunk) Chunk {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := SerializeGraph(root, archive.NewWriter(buf)); err != nil {
		t.Fatalf("SerializeGraph() failed: %v", err)
	}
	r := archive.NewReader(bytes.NewReader(buf.Bytes()))
	restored, err := DeserializeGraph(r)
	if err != nil {
		t.Fatalf("DeserializeGraph() failed: %v", err)
	}
	if !r.StillGood() {
		t.Fatalf("reader not good after a complete load")
	}
	return restored
}

func TestRoundTripEmptyFunctionList(t *testing.T) {
	m := NewModule()
	m.SetImageSource(nil)
	must(t, m.SetFunctionList(NewFunctionList()))

	restored, ok := roundTrip(t, m).(*Module)
	if !ok {
		t.Fatalf("root is not a module")
	}
	if restored.GetName() != "module-main" {
		t.Errorf("name = %q, want module-main", restored.GetName())
	}
	functions := restored.GetFunctionList()
	if functions == nil || functions.GetChildren().Len() != 0 {
		t.Fatalf("function list = %v", functions)
	}
	if restored.GetChildren().Len() != 1 || restored.GetChildren().Get(0) != Chunk(functions) {
		t.Errorf("function list is not the module's only child")
	}
	if functions.GetParent() != Chunk(restored) {
		t.Errorf("function list parent not restored")
	}
}

func TestRoundTripFunctions(t *testing.T) {
	const n = 6
	m := NewModule()
	m.SetImageSource(&fakeImage{library: true, short: "libn.so"})
	functions := NewFunctionList()
	must(t, m.SetFunctionList(functions))
	for i := 0; i < n; i++ {
		f := NewFunction(fmt.Sprintf("f%d", i))
		f.SetPosition(NewAbsolutePosition(uint64(0x1000 + 0x10*i)))
		f.SetSize(0x10)
		functions.AddFunction(f)
	}
	UpdateHull(functions)

	restored := roundTrip(t, m).(*Module)
	if diff := cmp.Diff(describe(m), describe(restored)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if got := restored.GetFunctionList().GetSize(); got != n*0x10 {
		t.Errorf("function list size = %#x, want %#x", got, n*0x10)
	}
}

func TestRoundTripKeepsHullSizing(t *testing.T) {
	m := NewModule()
	functions := NewFunctionList()
	must(t, m.SetFunctionList(functions))
	for _, name := range []string{"memcpy", "__memcpy"} {
		f := NewFunction(name)
		f.SetPosition(NewAbsolutePosition(0x1000))
		f.SetSize(0x10)
		functions.AddFunction(f)
	}
	UpdateHull(functions)

	restored := roundTrip(t, m).(*Module).GetFunctionList()
	if restored.GetSize() != 0x10 {
		t.Fatalf("restored hull size = %#x, want 0x10", restored.GetSize())
	}
	for _, f := range restored.Functions() {
		Destroy(f)
	}
	if restored.GetSize() != 0 {
		t.Errorf("size after destroying every alias = %#x, want 0", restored.GetSize())
	}
}

func TestRoundTripFullModule(t *testing.T) {
	tm := buildModule(t)
	restored := roundTrip(t, tm.module).(*Module)
	if diff := cmp.Diff(describe(tm.module), describe(restored)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	region := restored.GetDataRegionList().DataRegions()[0]
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, region.GetData()); diff != "" {
		t.Errorf("region data mismatch (-want +got):\n%s", diff)
	}
	if region.GetPermissions() != PermRead|PermWrite {
		t.Errorf("region permissions = %#x", region.GetPermissions())
	}
	if _, ok := region.GetPosition().(*OffsetPosition); !ok {
		t.Errorf("region position kind not preserved: %T", region.GetPosition())
	}
	marker := restored.GetMarkerList().Markers()[0]
	if marker.GetBase() != Chunk(region) || marker.GetOffset() != 8 {
		t.Errorf("marker base = %v + %d", marker.GetBase(), marker.GetOffset())
	}
	table := restored.GetJumpTableList().JumpTables()[0]
	fl := restored.GetFunctionList()
	if table.GetFunction() != Chunk(fl.Find("main")) || table.GetEntrySize() != 4 {
		t.Errorf("jump table function/entry size not restored")
	}
	targets := table.GetTargets()
	if len(targets) != 2 || targets[0] != Chunk(fl.Find("main")) || targets[1] != Chunk(fl.Find("helper")) {
		t.Errorf("jump table targets = %v", targets)
	}
}

func TestRoundTripPreservesAliasing(t *testing.T) {
	tm := buildModule(t)
	restored := roundTrip(t, tm.module).(*Module)

	trampolines := restored.GetPLTList().Trampolines()
	if len(trampolines) != 2 {
		t.Fatalf("got %d trampolines, want 2", len(trampolines))
	}
	helper := restored.GetFunctionList().Find("helper")
	if helper == nil {
		t.Fatalf("helper not restored")
	}
	if trampolines[0].GetTarget() != Chunk(helper) || trampolines[1].GetTarget() != Chunk(helper) {
		t.Errorf("trampolines do not share the restored helper")
	}
	if trampolines[0].GetExternalSymbol() != "puts" {
		t.Errorf("external symbol = %q", trampolines[0].GetExternalSymbol())
	}
	if got := Referrers(helper); got != 3 {
		t.Errorf("Referrers(helper) = %d, want 3", got)
	}
	if n := restored.GetFunctionList().GetChildren().Len(); n != 2 {
		t.Errorf("shared function duplicated: %d functions", n)
	}
}

func TestRoundTripCycle(t *testing.T) {
	m := NewModule()
	markers := NewMarkerList()
	must(t, m.SetMarkerList(markers))
	self := NewMarker("module_base")
	self.SetBase(m, 0)
	markers.AddMarker(self)

	restored := roundTrip(t, m).(*Module)
	if restored.GetMarkerList().Markers()[0].GetBase() != Chunk(restored) {
		t.Errorf("marker does not point back at the restored root")
	}
}

func TestSerializerOperationsMemoizes(t *testing.T) {
	op := NewSerializerOperations()
	a, b := NewFunction("a"), NewFunction("b")
	if op.Serialize(a) != 0 || op.Serialize(b) != 1 || op.Serialize(a) != 0 {
		t.Errorf("ids not assigned in first-request order")
	}
	if op.Serialize(nil) != NoID || op.Count() != 2 {
		t.Errorf("nil reference assigned an id")
	}
	if got, ok := LookupAs[*Function](op, 1); !ok || got != b {
		t.Errorf("LookupAs(1) = %v, %v", got, ok)
	}
	if _, ok := LookupAs[*Marker](op, 1); ok || op.Err() == nil {
		t.Errorf("LookupAs with the wrong kind succeeded")
	}
}

func TestDeserializeTruncatedName(t *testing.T) {
	buf := &bytes.Buffer{}
	w := archive.NewWriter(buf)
	w.WriteAnyLength("module-main")
	cut := buf.Bytes()[:7]

	m := NewModule()
	r := archive.NewReader(bytes.NewReader(cut))
	if m.Deserialize(NewSerializerOperations(), r) {
		t.Errorf("Deserialize() on a truncated name returned true")
	}
	if r.StillGood() {
		t.Errorf("StillGood() = true after truncation")
	}
}

func TestDeserializeGraphTruncated(t *testing.T) {
	tm := buildModule(t)
	buf := &bytes.Buffer{}
	must(t, SerializeGraph(tm.module, archive.NewWriter(buf)))

	data := buf.Bytes()
	var count uint32
	archive.NewReader(bytes.NewReader(data)).ReadUint32(&count)
	// Cut inside the root's name: count, kind table, then 4 length bytes and
	// a few characters.
	cut := data[:4+int(count)+4+3]

	r := archive.NewReader(bytes.NewReader(cut))
	_, err := DeserializeGraph(r)
	if err == nil {
		t.Fatalf("DeserializeGraph() on truncated data succeeded")
	}
	if !strings.Contains(err.Error(), "chunk id 0 (Module") {
		t.Errorf("error %q does not name the failing chunk", err)
	}
	if r.StillGood() {
		t.Errorf("StillGood() = true after truncation")
	}
}

// writeGraph builds an archive by hand so tests can plant bad references.
func writeGraph(kinds []Kind, bodies func(w *archive.Writer)) []byte {
	buf := &bytes.Buffer{}
	w := archive.NewWriter(buf)
	w.WriteUint32(uint32(len(kinds)))
	for _, k := range kinds {
		w.WriteUint8(uint8(k))
	}
	bodies(w)
	return buf.Bytes()
}

func TestDeserializeDanglingReference(t *testing.T) {
	data := writeGraph([]Kind{KindModule}, func(w *archive.Writer) {
		serializeHeader(NewModule(), w)
		w.WriteUint32(1)
		w.WriteUint32(7)
	})
	_, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data)))
	if err == nil || !strings.Contains(err.Error(), "id 7") {
		t.Errorf("DeserializeGraph() = %v, want an error naming id 7", err)
	}
}

func TestDeserializeWrongKind(t *testing.T) {
	data := writeGraph([]Kind{KindFunctionList, KindMarker}, func(w *archive.Writer) {
		serializeHeader(NewFunctionList(), w)
		w.WriteUint32(1)
		w.WriteUint32(1)
		serializeHeader(NewMarker("m"), w)
		w.WriteUint32(NoID)
		w.WriteUint64(0)
	})
	_, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data)))
	if err == nil || !strings.Contains(err.Error(), "is a Marker") {
		t.Errorf("DeserializeGraph() = %v, want a kind mismatch", err)
	}
}

func TestDeserializeNonListModuleChild(t *testing.T) {
	data := writeGraph([]Kind{KindModule, KindFunction}, func(w *archive.Writer) {
		serializeHeader(NewModule(), w)
		w.WriteUint32(1)
		w.WriteUint32(1)
		serializeHeader(NewFunction("stray"), w)
	})
	if _, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data))); err == nil {
		t.Errorf("DeserializeGraph() accepted a function as a module child")
	}
}

func TestDeserializeRegionDataOverflow(t *testing.T) {
	region := NewDataRegion(".data")
	region.SetSize(4)
	data := writeGraph([]Kind{KindDataRegion}, func(w *archive.Writer) {
		serializeHeader(region, w)
		w.WriteUint32(PermRead)
		w.WriteBytes(make([]byte, 16))
	})
	_, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data)))
	if err == nil || !strings.Contains(err.Error(), "holds 16 bytes") {
		t.Errorf("DeserializeGraph() = %v, want a size mismatch", err)
	}
}

func TestDeserializeMarkerCycle(t *testing.T) {
	data := writeGraph([]Kind{KindMarkerList, KindMarker, KindMarker}, func(w *archive.Writer) {
		list := NewMarkerList()
		serializeHeader(list, w)
		w.WriteUint32(2)
		w.WriteUint32(1)
		w.WriteUint32(2)
		w.WriteUint8(0)
		serializeHeader(NewMarker("a"), w)
		w.WriteUint32(2)
		w.WriteUint64(0)
		serializeHeader(NewMarker("b"), w)
		w.WriteUint32(1)
		w.WriteUint64(0)
	})
	_, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data)))
	if err == nil || !strings.Contains(err.Error(), "leads back to the marker") {
		t.Errorf("DeserializeGraph() = %v, want a marker cycle error", err)
	}
}

func TestDeserializeUnknownKind(t *testing.T) {
	data := writeGraph([]Kind{Kind(99)}, func(w *archive.Writer) {})
	if _, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data))); err == nil {
		t.Errorf("DeserializeGraph() accepted an unknown kind")
	}
}

func TestDeserializeEmptyGraph(t *testing.T) {
	data := writeGraph(nil, func(w *archive.Writer) {})
	if _, err := DeserializeGraph(archive.NewReader(bytes.NewReader(data))); err == nil {
		t.Errorf("DeserializeGraph() accepted an empty graph")
	}
}
