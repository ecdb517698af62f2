package chunk

// Link is a non-owning reference from one chunk to another, for relations
// that are not parent/child containment (a PLT entry's target, a marker's
// base). Destroying the target invalidates the link.
type Link struct {
	target Chunk
}

// NewLink returns nil for a nil target.
func NewLink(target Chunk) *Link {
	if target == nil {
		return nil
	}
	l := &Link{target: target}
	impl := target.impl()
	impl.referrers = append(impl.referrers, l)
	return l
}

// GetTarget is nil once the target has been destroyed.
func (l *Link) GetTarget() Chunk {
	if l == nil {
		return nil
	}
	return l.target
}

func (l *Link) IsValid() bool {
	return l != nil && l.target != nil
}

// Release unregisters l from its target. Chunks call this when they drop or
// replace a link.
func (l *Link) Release() {
	if !l.IsValid() {
		return
	}
	impl := l.target.impl()
	for i, r := range impl.referrers {
		if r == l {
			impl.referrers = append(impl.referrers[:i], impl.referrers[i+1:]...)
			break
		}
	}
	l.target = nil
}

func (l *Link) invalidate() {
	l.target = nil
}

// Referrers counts the valid links pointing at c.
func Referrers(c Chunk) int {
	return len(c.impl().referrers)
}

// Destroy removes c from its parent and ends the lifetime of c and its
// subtree: every link into the subtree is invalidated and every link held by
// the subtree is released.
func Destroy(c Chunk) {
	if parent := c.GetParent(); parent != nil {
		parent.GetChildren().Remove(c)
	}
	destroyTree(c)
}

func destroyTree(c Chunk) {
	if children := c.GetChildren(); children != nil {
		for _, child := range children.list {
			destroyTree(child)
		}
	}
	for _, l := range c.outgoingLinks() {
		l.Release()
	}
	impl := c.impl()
	for _, l := range impl.referrers {
		l.invalidate()
	}
	impl.referrers = nil
}
