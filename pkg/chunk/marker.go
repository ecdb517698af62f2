package chunk

import (
	"github.com/pkg/errors"

	"recomp/pkg/archive"
	"recomp/pkg/utils"
)

type MarkerList struct {
	CompositeChunkImpl
}

func NewMarkerList() *MarkerList {
	l := &MarkerList{}
	l.SetName("markers")
	l.initComposite(l)
	return l
}

func (l *MarkerList) AddMarker(m *Marker) {
	l.GetChildren().Add(m)
}

func (l *MarkerList) Markers() []*Marker {
	return childrenAs[*Marker](l.GetChildren())
}

func (l *MarkerList) Kind() Kind {
	return KindMarkerList
}

func (l *MarkerList) Accept(v Visitor) {
	v.VisitMarkerList(l)
}

func (l *MarkerList) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeComposite(op, l, w)
}

func (l *MarkerList) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeComposite[*Marker](op, l, r)
}

// Marker names an address defined relative to another chunk, like the
// linker symbols _end or __bss_start. It follows its base when the base
// moves.
type Marker struct {
	ChunkImpl
	base   *Link
	offset uint64
}

func NewMarker(name string) *Marker {
	m := &Marker{}
	m.SetName(name)
	return m
}

func (m *Marker) GetBase() Chunk {
	return m.base.GetTarget()
}

func (m *Marker) GetOffset() uint64 {
	return m.offset
}

// SetBase panics if base is m or a marker whose base chain reaches m.
func (m *Marker) SetBase(base Chunk, offset uint64) {
	utils.Assert(!m.reachedFrom(base), "marker %q cannot be based on itself", m.name)
	m.base.Release()
	m.base = NewLink(base)
	m.offset = offset
}

// GetAddress is the base's address plus the offset; a marker whose base was
// destroyed falls back to its own position.
func (m *Marker) GetAddress() uint64 {
	if base := m.base.GetTarget(); base != nil {
		return base.GetAddress() + m.offset
	}
	return m.ChunkImpl.GetAddress()
}

// reachedFrom follows marker bases starting at c and reports whether the
// chain comes back to m.
func (m *Marker) reachedFrom(c Chunk) bool {
	for c != nil {
		if c == Chunk(m) {
			return true
		}
		next, ok := c.(*Marker)
		if !ok {
			return false
		}
		c = next.GetBase()
	}
	return false
}

func (m *Marker) outgoingLinks() []*Link {
	if m.base == nil {
		return nil
	}
	return []*Link{m.base}
}

func (m *Marker) Kind() Kind {
	return KindMarker
}

func (m *Marker) Accept(v Visitor) {
	v.VisitMarker(m)
}

func (m *Marker) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(m, w)
	w.WriteUint32(op.SerializeLink(m.base))
	w.WriteUint64(m.offset)
}

func (m *Marker) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	if !deserializeHeader(m, r) {
		return false
	}
	var id uint32
	if !r.ReadUint32(&id) {
		return false
	}
	link, ok := op.LookupLink(id)
	if !ok {
		return false
	}
	if m.reachedFrom(link.GetTarget()) {
		link.Release()
		op.fail(errors.Errorf("marker %q: base id %d leads back to the marker", m.GetName(), id))
		return false
	}
	m.base = link
	return r.ReadUint64(&m.offset)
}
