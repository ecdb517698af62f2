package chunk

import (
	"recomp/pkg/utils"
)

// Visitor has one operation per concrete kind. Chunk.Accept calls the one
// matching the chunk's dynamic kind; a new kind does not compile until every
// visitor handles it.
//
// Visiting children is the visitor's job. ChunkPass provides recursion for
// kinds a pass does not care about.
type Visitor interface {
	VisitModule(module *Module)
	VisitFunctionList(functionList *FunctionList)
	VisitFunction(function *Function)
	VisitPLTList(pltList *PLTList)
	VisitPLTTrampoline(trampoline *PLTTrampoline)
	VisitJumpTableList(jumpTableList *JumpTableList)
	VisitJumpTable(jumpTable *JumpTable)
	VisitDataRegionList(dataRegionList *DataRegionList)
	VisitDataRegion(dataRegion *DataRegion)
	VisitMarkerList(markerList *MarkerList)
	VisitMarker(marker *Marker)
}

// ChunkPass is embedded by passes. Every Visit method descends into the
// chunk's children, dispatching on Self, so a pass overrides only the kinds
// it handles. Self must be set to the embedding pass.
type ChunkPass struct {
	Self Visitor
}

var _ Visitor = (*ChunkPass)(nil)

func (p *ChunkPass) recurse(c Chunk) {
	utils.Assert(p.Self != nil, "ChunkPass.Self not set")
	VisitChildren(p.Self, c)
}

func (p *ChunkPass) VisitModule(module *Module) {
	p.recurse(module)
}

func (p *ChunkPass) VisitFunctionList(functionList *FunctionList) {
	p.recurse(functionList)
}

func (p *ChunkPass) VisitFunction(function *Function) {}

func (p *ChunkPass) VisitPLTList(pltList *PLTList) {
	p.recurse(pltList)
}

func (p *ChunkPass) VisitPLTTrampoline(trampoline *PLTTrampoline) {}

func (p *ChunkPass) VisitJumpTableList(jumpTableList *JumpTableList) {
	p.recurse(jumpTableList)
}

func (p *ChunkPass) VisitJumpTable(jumpTable *JumpTable) {}

func (p *ChunkPass) VisitDataRegionList(dataRegionList *DataRegionList) {
	p.recurse(dataRegionList)
}

func (p *ChunkPass) VisitDataRegion(dataRegion *DataRegion) {}

func (p *ChunkPass) VisitMarkerList(markerList *MarkerList) {
	p.recurse(markerList)
}

func (p *ChunkPass) VisitMarker(marker *Marker) {}

// VisitChildren dispatches v on each child of c in order. Children added or
// removed by v during the walk do not affect it.
func VisitChildren(v Visitor, c Chunk) {
	children := c.GetChildren()
	if children == nil {
		return
	}
	for _, child := range children.All() {
		child.Accept(v)
	}
}
