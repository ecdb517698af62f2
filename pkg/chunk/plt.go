package chunk

import (
	"recomp/pkg/archive"
)

type PLTList struct {
	CompositeChunkImpl
}

func NewPLTList() *PLTList {
	l := &PLTList{}
	l.SetName("plt")
	l.initComposite(l)
	return l
}

func (l *PLTList) AddTrampoline(t *PLTTrampoline) {
	l.GetChildren().Add(t)
}

func (l *PLTList) Trampolines() []*PLTTrampoline {
	return childrenAs[*PLTTrampoline](l.GetChildren())
}

func (l *PLTList) Kind() Kind {
	return KindPLTList
}

func (l *PLTList) Accept(v Visitor) {
	v.VisitPLTList(l)
}

func (l *PLTList) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeComposite(op, l, w)
}

func (l *PLTList) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeComposite[*PLTTrampoline](op, l, r)
}

// PLTTrampoline is a PLT entry calling externalSymbol. When the symbol
// resolves inside this module, target links to the chunk it lands on.
type PLTTrampoline struct {
	ChunkImpl
	externalSymbol string
	target         *Link
}

func NewPLTTrampoline(externalSymbol string) *PLTTrampoline {
	t := &PLTTrampoline{externalSymbol: externalSymbol}
	if externalSymbol != "" {
		t.SetName(externalSymbol + "@plt")
	}
	return t
}

func (t *PLTTrampoline) GetExternalSymbol() string {
	return t.externalSymbol
}

func (t *PLTTrampoline) GetTarget() Chunk {
	return t.target.GetTarget()
}

func (t *PLTTrampoline) SetTarget(target Chunk) {
	t.target.Release()
	t.target = NewLink(target)
}

func (t *PLTTrampoline) outgoingLinks() []*Link {
	if t.target == nil {
		return nil
	}
	return []*Link{t.target}
}

func (t *PLTTrampoline) Kind() Kind {
	return KindPLTTrampoline
}

func (t *PLTTrampoline) Accept(v Visitor) {
	v.VisitPLTTrampoline(t)
}

func (t *PLTTrampoline) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(t, w)
	w.WriteAnyLength(t.externalSymbol)
	w.WriteUint32(op.SerializeLink(t.target))
}

func (t *PLTTrampoline) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	if !deserializeHeader(t, r) {
		return false
	}
	var id uint32
	r.ReadAnyLength(&t.externalSymbol)
	if !r.ReadUint32(&id) {
		return false
	}
	link, ok := op.LookupLink(id)
	if !ok {
		return false
	}
	t.target = link
	return r.StillGood()
}
