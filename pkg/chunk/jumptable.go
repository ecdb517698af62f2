package chunk

import (
	"recomp/pkg/archive"
)

type JumpTableList struct {
	CompositeChunkImpl
}

func NewJumpTableList() *JumpTableList {
	l := &JumpTableList{}
	l.SetName("jumptables")
	l.initComposite(l)
	return l
}

func (l *JumpTableList) AddJumpTable(jt *JumpTable) {
	l.GetChildren().Add(jt)
}

func (l *JumpTableList) JumpTables() []*JumpTable {
	return childrenAs[*JumpTable](l.GetChildren())
}

func (l *JumpTableList) Kind() Kind {
	return KindJumpTableList
}

func (l *JumpTableList) Accept(v Visitor) {
	v.VisitJumpTableList(l)
}

func (l *JumpTableList) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeComposite(op, l, w)
}

func (l *JumpTableList) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeComposite[*JumpTable](op, l, r)
}

// JumpTable is an indirect-branch table inside a function. Entries are
// links to the chunks they dispatch to, in table order.
type JumpTable struct {
	ChunkImpl
	function  *Link
	entrySize uint32
	targets   []*Link
}

func NewJumpTable(name string) *JumpTable {
	jt := &JumpTable{entrySize: 4}
	jt.SetName(name)
	return jt
}

func (jt *JumpTable) GetFunction() Chunk {
	return jt.function.GetTarget()
}

func (jt *JumpTable) SetFunction(f Chunk) {
	jt.function.Release()
	jt.function = NewLink(f)
}

func (jt *JumpTable) GetEntrySize() uint32 {
	return jt.entrySize
}

func (jt *JumpTable) SetEntrySize(size uint32) {
	jt.entrySize = size
}

func (jt *JumpTable) GetEntryCount() int {
	return len(jt.targets)
}

func (jt *JumpTable) AddTarget(target Chunk) {
	jt.targets = append(jt.targets, NewLink(target))
}

// GetTargets has a nil entry for every destroyed target.
func (jt *JumpTable) GetTargets() []Chunk {
	out := make([]Chunk, len(jt.targets))
	for i, l := range jt.targets {
		out[i] = l.GetTarget()
	}
	return out
}

func (jt *JumpTable) outgoingLinks() []*Link {
	var links []*Link
	if jt.function != nil {
		links = append(links, jt.function)
	}
	for _, l := range jt.targets {
		if l != nil {
			links = append(links, l)
		}
	}
	return links
}

func (jt *JumpTable) Kind() Kind {
	return KindJumpTable
}

func (jt *JumpTable) Accept(v Visitor) {
	v.VisitJumpTable(jt)
}

func (jt *JumpTable) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(jt, w)
	w.WriteUint32(op.SerializeLink(jt.function))
	w.WriteUint32(jt.entrySize)
	w.WriteUint32(uint32(len(jt.targets)))
	for _, l := range jt.targets {
		w.WriteUint32(op.SerializeLink(l))
	}
}

func (jt *JumpTable) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	if !deserializeHeader(jt, r) {
		return false
	}
	var id, count uint32
	if !r.ReadUint32(&id) {
		return false
	}
	link, ok := op.LookupLink(id)
	if !ok {
		return false
	}
	jt.function = link
	r.ReadUint32(&jt.entrySize)
	if !r.ReadUint32(&count) {
		return false
	}
	for i := uint32(0); i < count; i++ {
		if !r.ReadUint32(&id) {
			return false
		}
		link, ok := op.LookupLink(id)
		if !ok {
			return false
		}
		jt.targets = append(jt.targets, link)
	}
	return r.StillGood()
}
