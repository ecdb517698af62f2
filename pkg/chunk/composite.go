package chunk

import (
	"recomp/pkg/utils"
)

// ChildList is the ordered set of chunks a composite owns. Order is the
// on-disk or execution order and survives serialization.
type ChildList struct {
	owner Chunk
	list  []Chunk
}

// childObserver lets an owner keep typed slots in step with removals.
type childObserver interface {
	childRemoved(c Chunk)
}

func (l *ChildList) Len() int {
	return len(l.list)
}

func (l *ChildList) Get(i int) Chunk {
	return l.list[i]
}

// All returns a snapshot, safe to range over while the list changes.
func (l *ChildList) All() []Chunk {
	out := make([]Chunk, len(l.list))
	copy(out, l.list)
	return out
}

func (l *ChildList) IndexOf(c Chunk) int {
	for i, child := range l.list {
		if child == c {
			return i
		}
	}
	return -1
}

func (l *ChildList) Contains(c Chunk) bool {
	return l.IndexOf(c) >= 0
}

func (l *ChildList) Add(c Chunk) {
	l.InsertAt(len(l.list), c)
}

func (l *ChildList) InsertAt(i int, c Chunk) {
	utils.Assert(c != nil, "nil child")
	utils.Assert(c.GetParent() == nil, "%q is already owned by %q", c.GetName(), nameOf(c.GetParent()))
	utils.Assert(i >= 0 && i <= len(l.list), "insert at %d of %d", i, len(l.list))
	l.adopt(i, c)
	if isHullSized(l.owner) {
		resizeToHull(l.owner)
		return
	}
	l.owner.AddToSize(int64(c.GetSize()))
}

// adopt links c in without touching sizes; restored archives carry every
// size explicitly.
func (l *ChildList) adopt(i int, c Chunk) {
	l.list = append(l.list, nil)
	copy(l.list[i+1:], l.list[i:])
	l.list[i] = c
	c.SetParent(l.owner)
}

// Remove detaches c, which stays alive and may be added elsewhere. Use
// Destroy to drop it for good.
func (l *ChildList) Remove(c Chunk) bool {
	i := l.IndexOf(c)
	if i < 0 {
		return false
	}
	l.list = append(l.list[:i], l.list[i+1:]...)
	c.SetParent(nil)
	if isHullSized(l.owner) {
		resizeToHull(l.owner)
	} else {
		l.owner.AddToSize(-int64(c.GetSize()))
	}
	if o, ok := l.owner.(childObserver); ok {
		o.childRemoved(c)
	}
	return true
}

// CompositeChunkImpl is the base of kinds owning children. Composites must be
// built through their New functions so the child list knows its owner.
type CompositeChunkImpl struct {
	ChunkImpl
	children ChildList
	// hull is set once UpdateHull has sized this chunk; membership changes
	// then recompute the hull instead of summing child sizes.
	hull bool
}

type hullSizer interface {
	hullSized() *bool
}

func (c *CompositeChunkImpl) hullSized() *bool {
	return &c.hull
}

func isHullSized(c Chunk) bool {
	h, ok := c.(hullSizer)
	return ok && *h.hullSized()
}

func (c *CompositeChunkImpl) initComposite(owner Chunk) {
	c.children.owner = owner
}

func (c *CompositeChunkImpl) GetChildren() *ChildList {
	return &c.children
}

// UpdateHull gives c an absolute position and size covering every
// positioned child. Later additions and removals keep c sized to the hull,
// which is how aliased children at one address are counted once.
func UpdateHull(c Chunk) {
	children := c.GetChildren()
	if children == nil || !resizeToHull(c) {
		return
	}
	if h, ok := c.(hullSizer); ok {
		*h.hullSized() = true
	}
}

// resizeToHull reports whether c had a positioned child. Without one c keeps
// its position and shrinks to zero. Children placed at an offset from c pin
// the hull's start to c's own address.
func resizeToHull(c Chunk) bool {
	children := c.GetChildren()
	var (
		low, high uint64
		seen      bool
		anchored  bool
	)
	for _, child := range children.list {
		if !child.HasPosition() {
			continue
		}
		if _, ok := child.GetPosition().(*OffsetPosition); ok {
			anchored = true
		}
		start := child.GetAddress()
		end := start + child.GetSize()
		if !seen || start < low {
			low = start
		}
		if !seen || end > high {
			high = end
		}
		seen = true
	}
	if !seen {
		if isHullSized(c) {
			c.SetSize(0)
		}
		return false
	}
	if anchored && c.HasPosition() {
		low = c.GetAddress()
		high = max(high, low)
	} else {
		c.SetPosition(NewAbsolutePosition(low))
	}
	c.SetSize(high - low)
	return true
}

func childrenAs[T Chunk](l *ChildList) []T {
	out := make([]T, 0, len(l.list))
	for _, c := range l.list {
		out = append(out, c.(T))
	}
	return out
}

func nameOf(c Chunk) string {
	if c == nil {
		return "<nil>"
	}
	return c.GetName()
}
