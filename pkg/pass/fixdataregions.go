package pass

import (
	"recomp/pkg/chunk"
	"recomp/pkg/utils"
)

// FixDataRegionsPass moves the data region list to the first page boundary
// at or after start and gives each region its own page, positioned
// relative to the list. Markers based on a region move with it.
type FixDataRegionsPass struct {
	chunk.ChunkPass
	start     uint64
	pageAlign uint64
}

func NewFixDataRegionsPass(start, pageAlign uint64) *FixDataRegionsPass {
	utils.Assert(pageAlign != 0 && pageAlign&(pageAlign-1) == 0, "page alignment %#x is not a power of two", pageAlign)
	p := &FixDataRegionsPass{start: start, pageAlign: pageAlign}
	p.Self = p
	return p
}

func (p *FixDataRegionsPass) VisitModule(module *chunk.Module) {
	if l := module.GetDataRegionList(); l != nil {
		l.Accept(p)
	}
}

func (p *FixDataRegionsPass) VisitDataRegionList(dataRegionList *chunk.DataRegionList) {
	base := utils.AlignTo(p.start, p.pageAlign)
	dataRegionList.SetPosition(chunk.NewAbsolutePosition(base))

	offset := uint64(0)
	for _, region := range dataRegionList.DataRegions() {
		offset = utils.AlignTo(offset, p.pageAlign)
		region.SetPosition(chunk.NewOffsetPosition(region, offset))
		passLog.Logf(5, "  %s at %#x", region.GetName(), base+offset)
		offset += region.GetSize()
	}
	chunk.UpdateHull(dataRegionList)
	passLog.Logf(1, "data regions at %#x+%#x", base, dataRegionList.GetSize())
}
