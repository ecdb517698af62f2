package chunk

import (
	"bytes"

	"github.com/pkg/errors"

	"recomp/pkg/archive"
	"recomp/pkg/log"
)

var serializerLog = log.Group("serializer")

// NoID encodes a nil reference.
const NoID = ^uint32(0)

// maxChunks bounds the kind table of an archive.
const maxChunks = 1 << 24

// SerializerOperations maps chunks to the ids that stand in for them inside
// an archive. Ids are assigned lazily on first request and memoized, so a
// chunk referenced from several places is written once and every reference
// resolves to the same object after loading.
//
// Loading uses placeholder registration: the archive lists the kind of every
// id before any chunk body, the reader registers an empty chunk per id, and
// only then reads bodies. A body may therefore reference any id, earlier or
// later, including its own ancestors.
type SerializerOperations struct {
	ids    map[Chunk]uint32
	chunks []Chunk
	err    error
}

func NewSerializerOperations() *SerializerOperations {
	return &SerializerOperations{ids: make(map[Chunk]uint32)}
}

// Serialize returns the id of c, assigning the next unused id on first use.
func (op *SerializerOperations) Serialize(c Chunk) uint32 {
	if c == nil {
		return NoID
	}
	if id, ok := op.ids[c]; ok {
		return id
	}
	return op.register(c)
}

func (op *SerializerOperations) SerializeLink(l *Link) uint32 {
	return op.Serialize(l.GetTarget())
}

func (op *SerializerOperations) register(c Chunk) uint32 {
	id := uint32(len(op.chunks))
	op.ids[c] = id
	op.chunks = append(op.chunks, c)
	return id
}

func (op *SerializerOperations) Count() int {
	return len(op.chunks)
}

// Err is the first resolution failure seen while loading.
func (op *SerializerOperations) Err() error {
	return op.err
}

func (op *SerializerOperations) fail(err error) {
	if op.err == nil {
		op.err = err
	}
}

// Lookup resolves id. An unknown id is recorded on op and reported as not ok.
func (op *SerializerOperations) Lookup(id uint32) (Chunk, bool) {
	if id == NoID || int64(id) >= int64(len(op.chunks)) {
		op.fail(errors.Errorf("no chunk registered under id %d", id))
		return nil, false
	}
	return op.chunks[id], true
}

// LookupAs resolves id and requires the chunk to be a T.
func LookupAs[T Chunk](op *SerializerOperations, id uint32) (T, bool) {
	var zero T
	c, ok := op.Lookup(id)
	if !ok {
		return zero, false
	}
	t, ok := c.(T)
	if !ok {
		op.fail(errors.Errorf("id %d is a %s, not a %T", id, c.Kind(), zero))
		return zero, false
	}
	return t, true
}

// LookupLink resolves an optional reference; NoID yields a nil link.
func (op *SerializerOperations) LookupLink(id uint32) (*Link, bool) {
	if id == NoID {
		return nil, true
	}
	c, ok := op.Lookup(id)
	if !ok {
		return nil, false
	}
	return NewLink(c), true
}

// SerializeGraph writes root and everything reachable from it, by
// containment or by link. The layout is
//
//	count:u32  kind:u8 × count  body × count
//
// with root as id 0 and bodies in id order.
func SerializeGraph(root Chunk, w *archive.Writer) error {
	op := NewSerializerOperations()
	op.Serialize(root)

	var bodies [][]byte
	for i := 0; i < len(op.chunks); i++ {
		c := op.chunks[i]
		buf := &bytes.Buffer{}
		bw := archive.NewWriter(buf)
		c.Serialize(op, bw)
		if err := bw.Err(); err != nil {
			return errors.Wrapf(err, "serializing chunk id %d (%s %q)", i, c.Kind(), c.GetName())
		}
		serializerLog.Logf(5, "serialized id %d %s %q, %d bytes", i, c.Kind(), c.GetName(), buf.Len())
		bodies = append(bodies, buf.Bytes())
	}

	w.WriteUint32(uint32(len(op.chunks)))
	for _, c := range op.chunks {
		w.WriteUint8(uint8(c.Kind()))
	}
	for _, body := range bodies {
		w.WriteRaw(body)
	}
	serializerLog.Logf(1, "serialized %d chunks", len(op.chunks))
	return errors.Wrap(w.Err(), "writing chunk graph")
}

// DeserializeGraph restores a graph written by SerializeGraph and returns
// its root. Loading stops at the first chunk that cannot be read.
func DeserializeGraph(r *archive.Reader) (Chunk, error) {
	var count uint32
	if !r.ReadUint32(&count) {
		return nil, errors.New("chunk graph: truncated header")
	}
	if count == 0 || count > maxChunks {
		return nil, errors.Errorf("chunk graph: bad chunk count %d", count)
	}

	op := NewSerializerOperations()
	for i := uint32(0); i < count; i++ {
		var k uint8
		if !r.ReadUint8(&k) {
			return nil, errors.Errorf("chunk graph: truncated kind table at id %d", i)
		}
		c, err := newChunkOfKind(Kind(k))
		if err != nil {
			return nil, errors.Wrapf(err, "chunk graph: id %d", i)
		}
		op.register(c)
	}

	for i, c := range op.chunks {
		if !c.Deserialize(op, r) {
			if err := op.Err(); err != nil {
				return nil, errors.Wrapf(err, "chunk id %d (%s %q)", i, c.Kind(), c.GetName())
			}
			return nil, errors.Errorf("chunk id %d (%s %q): stream truncated or corrupt", i, c.Kind(), c.GetName())
		}
		serializerLog.Logf(5, "loaded id %d %s %q", i, c.Kind(), c.GetName())
	}
	return op.chunks[0], nil
}

func newChunkOfKind(k Kind) (Chunk, error) {
	switch k {
	case KindModule:
		return NewModule(), nil
	case KindFunctionList:
		return NewFunctionList(), nil
	case KindFunction:
		return NewFunction(""), nil
	case KindPLTList:
		return NewPLTList(), nil
	case KindPLTTrampoline:
		return NewPLTTrampoline(""), nil
	case KindJumpTableList:
		return NewJumpTableList(), nil
	case KindJumpTable:
		return NewJumpTable(""), nil
	case KindDataRegionList:
		return NewDataRegionList(), nil
	case KindDataRegion:
		return NewDataRegion(""), nil
	case KindMarkerList:
		return NewMarkerList(), nil
	case KindMarker:
		return NewMarker(""), nil
	}
	return nil, errors.Errorf("unknown chunk kind %d", k)
}

const (
	positionNone uint8 = iota
	positionAbsolute
	positionOffset
)

// serializeHeader writes the fields every kind has.
func serializeHeader(c Chunk, w *archive.Writer) {
	w.WriteAnyLength(c.GetName())
	switch p := c.GetPosition().(type) {
	case nil:
		w.WriteUint8(positionNone)
		w.WriteUint64(0)
	case *OffsetPosition:
		w.WriteUint8(positionOffset)
		w.WriteUint64(p.offset)
	default:
		w.WriteUint8(positionAbsolute)
		w.WriteUint64(p.Get())
	}
	w.WriteUint64(c.GetSize())
}

// deserializeHeader restores the name, position and size written by
// serializeHeader. The size is set without touching ancestors.
func deserializeHeader(c Chunk, r *archive.Reader) bool {
	var (
		name  string
		tag   uint8
		value uint64
		size  uint64
	)
	r.ReadAnyLength(&name)
	r.ReadUint8(&tag)
	r.ReadUint64(&value)
	r.ReadUint64(&size)
	if !r.StillGood() {
		return false
	}
	c.SetName(name)
	switch tag {
	case positionNone:
	case positionAbsolute:
		c.SetPosition(NewAbsolutePosition(value))
	case positionOffset:
		c.SetPosition(NewOffsetPosition(c, value))
	default:
		return false
	}
	c.impl().size = size
	serializerLog.Logf(9, "trying to parse %s [%s]", c.Kind(), name)
	return true
}

func serializeChildren(op *SerializerOperations, c Chunk, w *archive.Writer) {
	children := c.GetChildren()
	w.WriteUint32(uint32(children.Len()))
	for _, child := range children.list {
		w.WriteUint32(op.Serialize(child))
	}
}

// deserializeChildren reads the child ids of c, requiring each to be a T.
func deserializeChildren[T Chunk](op *SerializerOperations, c Chunk, r *archive.Reader) bool {
	var count uint32
	if !r.ReadUint32(&count) {
		return false
	}
	children := c.GetChildren()
	for i := uint32(0); i < count; i++ {
		var id uint32
		if !r.ReadUint32(&id) {
			return false
		}
		child, ok := LookupAs[T](op, id)
		if !ok {
			return false
		}
		if child.GetParent() != nil {
			op.fail(errors.Errorf("id %d is already a child of %q", id, child.GetParent().GetName()))
			return false
		}
		children.adopt(children.Len(), child)
	}
	return r.StillGood()
}

// serializeComposite and deserializeComposite cover list kinds whose
// children are all of one kind.
// A trailing byte records whether the list is sized by UpdateHull.
func serializeComposite(op *SerializerOperations, c Chunk, w *archive.Writer) {
	serializeHeader(c, w)
	serializeChildren(op, c, w)
	var hull uint8
	if isHullSized(c) {
		hull = 1
	}
	w.WriteUint8(hull)
}

func deserializeComposite[T Chunk](op *SerializerOperations, c Chunk, r *archive.Reader) bool {
	if !deserializeHeader(c, r) || !deserializeChildren[T](op, c, r) {
		return false
	}
	var hull uint8
	if !r.ReadUint8(&hull) {
		return false
	}
	if h, ok := c.(hullSizer); ok {
		*h.hullSized() = hull != 0
	}
	return true
}
