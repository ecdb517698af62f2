package chunk

import (
	"recomp/pkg/archive"
)

type FunctionList struct {
	CompositeChunkImpl
}

func NewFunctionList() *FunctionList {
	l := &FunctionList{}
	l.SetName("functions")
	l.initComposite(l)
	return l
}

func (l *FunctionList) AddFunction(f *Function) {
	l.GetChildren().Add(f)
}

func (l *FunctionList) Functions() []*Function {
	return childrenAs[*Function](l.GetChildren())
}

// Find returns the first function named name.
func (l *FunctionList) Find(name string) *Function {
	for _, f := range l.Functions() {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func (l *FunctionList) Kind() Kind {
	return KindFunctionList
}

func (l *FunctionList) Accept(v Visitor) {
	v.VisitFunctionList(l)
}

func (l *FunctionList) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeComposite(op, l, w)
}

func (l *FunctionList) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeComposite[*Function](op, l, r)
}

// Function is one function's extent. Its instructions are outside the IR
// core and are not modeled here.
type Function struct {
	ChunkImpl
}

func NewFunction(name string) *Function {
	f := &Function{}
	f.SetName(name)
	return f
}

func (f *Function) Kind() Kind {
	return KindFunction
}

func (f *Function) Accept(v Visitor) {
	v.VisitFunction(f)
}

func (f *Function) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(f, w)
}

func (f *Function) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeHeader(f, r)
}
