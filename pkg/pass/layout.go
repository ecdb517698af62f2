package pass

import (
	"recomp/pkg/chunk"
	"recomp/pkg/utils"
)

const (
	FunctionAlign = 16
	PLTEntrySize  = 16
)

// LayoutPass packs functions, then PLT entries, contiguously upwards from a
// base address. Data regions are left to FixDataRegionsPass.
type LayoutPass struct {
	chunk.ChunkPass
	cursor uint64
}

func NewLayoutPass(base uint64) *LayoutPass {
	p := &LayoutPass{cursor: base}
	p.Self = p
	return p
}

// End is the first address past everything laid out so far.
func (p *LayoutPass) End() uint64 {
	return p.cursor
}

func (p *LayoutPass) VisitModule(module *chunk.Module) {
	if l := module.GetFunctionList(); l != nil {
		l.Accept(p)
	}
	if l := module.GetPLTList(); l != nil {
		l.Accept(p)
	}
	passLog.Logf(1, "layout %s: code ends at %#x", module.GetName(), p.cursor)
}

func (p *LayoutPass) place(c chunk.Chunk) {
	p.cursor = utils.AlignTo(p.cursor, FunctionAlign)
	if pos, ok := c.GetPosition().(*chunk.AbsolutePosition); ok {
		pos.Set(p.cursor)
	} else {
		c.SetPosition(chunk.NewAbsolutePosition(p.cursor))
	}
	passLog.Logf(5, "  %s at %#x", c.GetName(), p.cursor)
	p.cursor += c.GetSize()
}

func (p *LayoutPass) VisitFunctionList(functionList *chunk.FunctionList) {
	for _, f := range functionList.Functions() {
		p.place(f)
	}
	chunk.UpdateHull(functionList)
}

func (p *LayoutPass) VisitPLTList(pltList *chunk.PLTList) {
	for _, t := range pltList.Trampolines() {
		if t.GetSize() == 0 {
			t.SetSize(PLTEntrySize)
		}
		p.place(t)
	}
	chunk.UpdateHull(pltList)
}
