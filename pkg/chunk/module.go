package chunk

import (
	"github.com/pkg/errors"

	"recomp/pkg/archive"
)

// ImageSource describes the loaded image a Module was built from. The loader
// owns it; a Module only points at it.
type ImageSource interface {
	IsSharedLibrary() bool
	ShortName() string
}

// Module is the root chunk of one loaded executable or shared library. It
// holds at most one list of each kind, and every list it holds is also one of
// its children.
type Module struct {
	CompositeChunkImpl
	image ImageSource

	functionList   *FunctionList
	pltList        *PLTList
	jumpTableList  *JumpTableList
	dataRegionList *DataRegionList
	markerList     *MarkerList
}

func NewModule() *Module {
	m := &Module{}
	m.initComposite(m)
	return m
}

// SetImageSource attaches img and derives the module name from it. The name
// is not re-derived later; call again after changing the image.
func (m *Module) SetImageSource(img ImageSource) {
	m.image = img
	if img != nil && img.IsSharedLibrary() && img.ShortName() != "" {
		m.SetName("module-" + img.ShortName())
	} else {
		m.SetName("module-main")
	}
}

func (m *Module) GetImageSource() ImageSource {
	return m.image
}

// A module's address space is the union of unrelated lists, so it has no
// size of its own and stops size propagation.
func (m *Module) SetSize(size uint64) {}
func (m *Module) AddToSize(add int64) {}

func (m *Module) GetFunctionList() *FunctionList     { return m.functionList }
func (m *Module) GetPLTList() *PLTList               { return m.pltList }
func (m *Module) GetJumpTableList() *JumpTableList   { return m.jumpTableList }
func (m *Module) GetDataRegionList() *DataRegionList { return m.dataRegionList }
func (m *Module) GetMarkerList() *MarkerList         { return m.markerList }

func (m *Module) SetFunctionList(list *FunctionList) error {
	return setSlot(m, &m.functionList, list)
}

func (m *Module) SetPLTList(list *PLTList) error {
	return setSlot(m, &m.pltList, list)
}

func (m *Module) SetJumpTableList(list *JumpTableList) error {
	return setSlot(m, &m.jumpTableList, list)
}

func (m *Module) SetDataRegionList(list *DataRegionList) error {
	return setSlot(m, &m.dataRegionList, list)
}

func (m *Module) SetMarkerList(list *MarkerList) error {
	return setSlot(m, &m.markerList, list)
}

// ErrSlotTaken is returned when a module already holds a different list of
// the same kind.
var ErrSlotTaken = errors.New("module list slot already taken")

// setSlot stores list and makes it a child of m, exactly once. Setting the
// list a slot already holds is a no-op; anything else that would let the slot
// and the child list disagree is refused.
func setSlot[T interface {
	Chunk
	comparable
}](m *Module, slot *T, list T) error {
	var zero T
	if list == zero {
		return errors.Errorf("%s: nil list", m.GetName())
	}
	if *slot == list {
		return nil
	}
	if *slot != zero {
		return errors.Wrapf(ErrSlotTaken, "%s already has a %s", m.GetName(), list.Kind())
	}
	switch parent := list.GetParent(); {
	case parent == nil:
		m.GetChildren().Add(list)
	case parent != Chunk(m):
		return errors.Errorf("%s %q is owned by %q", list.Kind(), list.GetName(), parent.GetName())
	}
	*slot = list
	return nil
}

func (m *Module) childRemoved(c Chunk) {
	switch c {
	case Chunk(m.functionList):
		m.functionList = nil
	case Chunk(m.pltList):
		m.pltList = nil
	case Chunk(m.jumpTableList):
		m.jumpTableList = nil
	case Chunk(m.dataRegionList):
		m.dataRegionList = nil
	case Chunk(m.markerList):
		m.markerList = nil
	}
}

// setList files c into the slot for its kind.
func (m *Module) setList(c Chunk) error {
	switch c.Kind() {
	case KindFunctionList:
		return m.SetFunctionList(c.(*FunctionList))
	case KindPLTList:
		return m.SetPLTList(c.(*PLTList))
	case KindJumpTableList:
		return m.SetJumpTableList(c.(*JumpTableList))
	case KindDataRegionList:
		return m.SetDataRegionList(c.(*DataRegionList))
	case KindMarkerList:
		return m.SetMarkerList(c.(*MarkerList))
	}
	return errors.Errorf("a %s cannot be a child of a module", c.Kind())
}

func (m *Module) Kind() Kind {
	return KindModule
}

func (m *Module) Accept(v Visitor) {
	v.VisitModule(m)
}

func (m *Module) Serialize(op *SerializerOperations, w *archive.Writer) {
	serializeHeader(m, w)
	serializeChildren(op, m, w)
}

func (m *Module) Deserialize(op *SerializerOperations, r *archive.Reader) bool {
	if !deserializeHeader(m, r) {
		return false
	}
	var count uint32
	if !r.ReadUint32(&count) {
		return false
	}
	for i := uint32(0); i < count; i++ {
		var id uint32
		if !r.ReadUint32(&id) {
			return false
		}
		list, ok := op.Lookup(id)
		if !ok {
			return false
		}
		if err := m.setList(list); err != nil {
			op.fail(err)
			return false
		}
	}
	return r.StillGood()
}
