// Package archive is the byte-stream codec underneath chunk graph
// serialization.
//
// The format is durable across runs: every fixed-width integer is written
// little-endian at its natural width, and variable-length data is a uint32
// length followed by the raw bytes.
package archive

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxLength bounds any single length-prefixed field.
const MaxLength = 16 << 20

type Fixed interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

var byteOrder = binary.LittleEndian

// Writer appends primitives to an io.Writer. The first failure is kept and
// every later write is dropped.
type Writer struct {
	w   io.Writer
	n   int64
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Err() error {
	return w.err
}

// Offset is the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.n
}

func (w *Writer) WriteRaw(data []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(data)
	w.n += int64(n)
	if err != nil {
		w.err = errors.Wrap(err, "archive write")
	}
}

func Write[T Fixed](w *Writer, v T) {
	if w.err != nil {
		return
	}
	if err := binary.Write(w.w, byteOrder, v); err != nil {
		w.err = errors.Wrap(err, "archive write")
		return
	}
	w.n += int64(binary.Size(v))
}

func (w *Writer) WriteUint8(v uint8)   { Write(w, v) }
func (w *Writer) WriteUint16(v uint16) { Write(w, v) }
func (w *Writer) WriteUint32(v uint32) { Write(w, v) }
func (w *Writer) WriteUint64(v uint64) { Write(w, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteAnyLength writes a length-prefixed string.
func (w *Writer) WriteAnyLength(s string) {
	w.WriteBytes([]byte(s))
}

func (w *Writer) WriteBytes(data []byte) {
	if len(data) > MaxLength {
		if w.err == nil {
			w.err = errors.Errorf("archive field of %d bytes exceeds %d", len(data), MaxLength)
		}
		return
	}
	w.WriteUint32(uint32(len(data)))
	w.WriteRaw(data)
}

// Reader consumes primitives. Once a read comes up short the reader is no
// longer good and stays that way; later reads leave their destinations
// untouched.
type Reader struct {
	r    io.Reader
	n    int64
	good bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, good: true}
}

// StillGood reports whether every read so far was complete.
func (r *Reader) StillGood() bool {
	return r.good
}

func (r *Reader) Offset() int64 {
	return r.n
}

func (r *Reader) ReadRaw(data []byte) bool {
	if !r.good {
		return false
	}
	n, err := io.ReadFull(r.r, data)
	r.n += int64(n)
	if err != nil {
		r.good = false
	}
	return r.good
}

func Read[T Fixed](r *Reader, v *T) bool {
	buf := make([]byte, binary.Size(*v))
	if !r.ReadRaw(buf) {
		return false
	}
	if err := binary.Read(bytes.NewReader(buf), byteOrder, v); err != nil {
		r.good = false
	}
	return r.good
}

func (r *Reader) ReadUint8(v *uint8) bool   { return Read(r, v) }
func (r *Reader) ReadUint16(v *uint16) bool { return Read(r, v) }
func (r *Reader) ReadUint32(v *uint32) bool { return Read(r, v) }
func (r *Reader) ReadUint64(v *uint64) bool { return Read(r, v) }

func (r *Reader) ReadBool(v *bool) bool {
	var b uint8
	if !r.ReadUint8(&b) {
		return false
	}
	*v = b != 0
	return true
}

// ReadAnyLength reads a length-prefixed string into s.
func (r *Reader) ReadAnyLength(s *string) bool {
	var data []byte
	if !r.ReadBytes(&data) {
		return false
	}
	*s = string(data)
	return true
}

func (r *Reader) ReadBytes(data *[]byte) bool {
	var length uint32
	if !r.ReadUint32(&length) {
		return false
	}
	if length > MaxLength {
		r.good = false
		return false
	}
	buf := make([]byte, length)
	if !r.ReadRaw(buf) {
		return false
	}
	*data = buf
	return true
}
