package archive

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriterLayout(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	w.WriteAnyLength("ab")
	w.WriteUint32(0x01020304)
	w.WriteUint8(7)
	w.WriteUint16(0xbeef)
	w.WriteBool(true)
	if err := w.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	want := []byte{
		2, 0, 0, 0, 'a', 'b',
		0x04, 0x03, 0x02, 0x01,
		7,
		0xef, 0xbe,
		1,
	}
	if diff := cmp.Diff(want, buf.Bytes()); diff != "" {
		t.Errorf("stream mismatch (-want +got):\n%s", diff)
	}
	if w.Offset() != int64(len(want)) {
		t.Errorf("Offset() = %d, want %d", w.Offset(), len(want))
	}
}

func TestRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	w.WriteAnyLength("module-libc.so")
	w.WriteUint64(0x40001000)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteAnyLength("")
	Write(w, int32(-5))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	var (
		name  string
		addr  uint64
		data  []byte
		empty = "unset"
		neg   int32
	)
	r.ReadAnyLength(&name)
	r.ReadUint64(&addr)
	r.ReadBytes(&data)
	r.ReadAnyLength(&empty)
	Read(r, &neg)
	if !r.StillGood() {
		t.Fatalf("StillGood() = false after complete reads")
	}
	if name != "module-libc.so" || addr != 0x40001000 || empty != "" || neg != -5 {
		t.Errorf("read back %q %#x %q %d", name, addr, empty, neg)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, data); diff != "" {
		t.Errorf("ReadBytes() mismatch (-want +got):\n%s", diff)
	}
	var extra uint8
	if r.ReadUint8(&extra) || r.StillGood() {
		t.Errorf("read past end succeeded")
	}
}

func TestTruncatedName(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	w.WriteAnyLength("module-main")
	cut := buf.Bytes()[:4+5]

	r := NewReader(bytes.NewReader(cut))
	name := "before"
	if r.ReadAnyLength(&name) {
		t.Errorf("ReadAnyLength() on truncated input succeeded")
	}
	if r.StillGood() {
		t.Errorf("StillGood() = true after truncated read")
	}
	if name != "before" {
		t.Errorf("destination modified to %q", name)
	}
	var v uint32
	if r.ReadUint32(&v) {
		t.Errorf("read after failure succeeded")
	}
}

func TestOversizedLength(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	var s string
	if r.ReadAnyLength(&s) || r.StillGood() {
		t.Errorf("oversized length accepted")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, bytes.ErrTooLarge }

func TestWriterStickyError(t *testing.T) {
	w := NewWriter(failingWriter{})
	w.WriteUint32(1)
	w.WriteAnyLength("x")
	if w.Err() == nil {
		t.Errorf("Err() = nil after failed write")
	}
}
