package chunk

import (
	"github.com/pkg/errors"

	"recomp/pkg/archive"
)

type DataRegionList struct {
	CompositeChunkImpl
}

func NewDataRegionList() *DataRegionList {
	l := &DataRegionList{}
	l.SetName("dataregions")
	l.initComposite(l)
	return l
}

func (l *DataRegionList) AddDataRegion(region *DataRegion) {
	l.GetChildren().Add(region)
}

func (l *DataRegionList) DataRegions() []*DataRegion {
	return childrenAs[*DataRegion](l.GetChildren())
}

// FindContaining returns the region whose range covers address.
func (l *DataRegionList) FindContaining(address uint64) *DataRegion {
	for _, region := range l.DataRegions() {
		if region.Contains(address) {
			return region
		}
	}
	return nil
}

func (l *DataRegionList) Kind() Kind {
	return KindDataRegionList
}

func (l *DataRegionList) Accept(v Visitor) {
	v.VisitDataRegionList(l)
}

func (l *DataRegionList) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeComposite(op, l, w)
}

func (l *DataRegionList) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	return deserializeComposite[*DataRegion](op, l, r)
}

// Permission bits of a data region, laid out like ELF segment flags.
const (
	PermExecute uint32 = 1 << iota
	PermWrite
	PermRead
)

// DataRegion is a run of initialized data followed by size-len(data) zero
// bytes.
type DataRegion struct {
	ChunkImpl
	permissions uint32
	data        []byte
}

func NewDataRegion(name string) *DataRegion {
	d := &DataRegion{permissions: PermRead}
	d.SetName(name)
	return d
}

func (d *DataRegion) GetPermissions() uint32 {
	return d.permissions
}

func (d *DataRegion) SetPermissions(perm uint32) {
	d.permissions = perm
}

func (d *DataRegion) GetData() []byte {
	return d.data
}

// SetData replaces the initialized bytes and grows the region to hold them.
func (d *DataRegion) SetData(data []byte) {
	d.data = data
	if uint64(len(data)) > d.GetSize() {
		d.SetSize(uint64(len(data)))
	}
}

func (d *DataRegion) IsBSSOnly() bool {
	return len(d.data) == 0 && d.GetSize() > 0
}

func (d *DataRegion) Contains(address uint64) bool {
	start := d.GetAddress()
	return d.HasPosition() && address >= start && address < start+d.GetSize()
}

func (d *DataRegion) Kind() Kind {
	return KindDataRegion
}

func (d *DataRegion) Accept(v Visitor) {
	v.VisitDataRegion(d)
}

func (d *DataRegion) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(d, w)
	w.WriteUint32(d.permissions)
	w.WriteBytes(d.data)
}

func (d *DataRegion) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	if !deserializeHeader(d, r) {
		return false
	}
	r.ReadUint32(&d.permissions)
	var data []byte
	if !r.ReadBytes(&data) {
		return false
	}
	if uint64(len(data)) > d.GetSize() {
		op.fail(errors.Errorf("data region %q holds %d bytes but is %#x long", d.GetName(), len(data), d.GetSize()))
		return false
	}
	if len(data) > 0 {
		d.data = data
	}
	return true
}
