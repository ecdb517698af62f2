package generate

import (
	"bytes"
	"encoding/binary"

	"recomp/pkg/utils"
)

// DeferredSection holds fixed-size records keyed by K. Records stay mutable
// through the pointers FindValue returns until CommitValues encodes them,
// in key order, into the section data. The reported size is the same
// before and after commit.
type DeferredSection[K comparable, V any] struct {
	*Section
	valueMap   map[K]*V
	keyList    []K
	index      map[K]int
	indexDirty bool
	committed  bool
	valueSize  uint64
}

func NewDeferredSection[K comparable, V any](section *Section) *DeferredSection[K, V] {
	var zero V
	size := binary.Size(zero)
	utils.Assert(size > 0, "%T is not a fixed-size record", zero)
	utils.Assert(len(section.data) == 0, "deferred section %q already holds data", section.name)
	return &DeferredSection[K, V]{
		Section:   section,
		valueMap:  make(map[K]*V),
		index:     make(map[K]int),
		valueSize: uint64(size),
	}
}

func (d *DeferredSection[K, V]) GetValueSize() uint64 {
	return d.valueSize
}

func (d *DeferredSection[K, V]) GetCount() int {
	return len(d.keyList)
}

func (d *DeferredSection[K, V]) GetSize() uint64 {
	return uint64(len(d.keyList)) * d.valueSize
}

func (d *DeferredSection[K, V]) IsCommitted() bool {
	return d.committed
}

// AddKeyValue appends a record and returns the stored copy.
func (d *DeferredSection[K, V]) AddKeyValue(key K, value V) *V {
	return d.Insert(len(d.keyList), key, value)
}

// Insert splices a record in at pos, shifting later records by one.
func (d *DeferredSection[K, V]) Insert(pos int, key K, value V) *V {
	utils.Assert(!d.committed, "%s: insert after commit", d.GetName())
	utils.Assert(pos >= 0 && pos <= len(d.keyList), "%s: insert position %d out of range", d.GetName(), pos)
	_, dup := d.valueMap[key]
	utils.Assert(!dup, "%s: duplicate key %v", d.GetName(), key)

	stored := new(V)
	*stored = value
	d.valueMap[key] = stored
	if pos == len(d.keyList) {
		d.index[key] = pos
		d.keyList = append(d.keyList, key)
		return stored
	}
	d.keyList = append(d.keyList, key)
	copy(d.keyList[pos+1:], d.keyList[pos:])
	d.keyList[pos] = key
	d.indexDirty = true
	return stored
}

func (d *DeferredSection[K, V]) Contains(key K) bool {
	_, ok := d.valueMap[key]
	return ok
}

func (d *DeferredSection[K, V]) LookupValue(key K) (*V, bool) {
	v, ok := d.valueMap[key]
	return v, ok
}

// FindValue returns the live record for key. Unknown keys are a usage error.
func (d *DeferredSection[K, V]) FindValue(key K) *V {
	v, ok := d.valueMap[key]
	utils.Assert(ok, "%s: unknown key %v", d.GetName(), key)
	return v
}

// FindIndex returns the record's position, which is also its index in the
// encoded table.
func (d *DeferredSection[K, V]) FindIndex(key K) int {
	if d.indexDirty {
		d.index = make(map[K]int, len(d.keyList))
		for i, k := range d.keyList {
			d.index[k] = i
		}
		d.indexDirty = false
	}
	i, ok := d.index[key]
	utils.Assert(ok, "%s: unknown key %v", d.GetName(), key)
	return i
}

func (d *DeferredSection[K, V]) Keys() []K {
	return append([]K(nil), d.keyList...)
}

// CommitValues encodes every record once. Later calls do nothing.
func (d *DeferredSection[K, V]) CommitValues() {
	if d.committed {
		return
	}
	utils.Assert(len(d.data) == 0, "deferred section %q written to before commit", d.name)
	values := make([]*V, 0, len(d.keyList))
	for _, k := range d.keyList {
		values = append(values, d.valueMap[k])
	}
	d.Section.Add(encodeValues(values))
	d.committed = true
}

// SimpleDeferredSection is a DeferredSection whose records need no key.
type SimpleDeferredSection[V any] struct {
	*Section
	values    []*V
	committed bool
	valueSize uint64
}

func NewSimpleDeferredSection[V any](section *Section) *SimpleDeferredSection[V] {
	var zero V
	size := binary.Size(zero)
	utils.Assert(size > 0, "%T is not a fixed-size record", zero)
	utils.Assert(len(section.data) == 0, "deferred section %q already holds data", section.name)
	return &SimpleDeferredSection[V]{Section: section, valueSize: uint64(size)}
}

func (d *SimpleDeferredSection[V]) GetValueSize() uint64 {
	return d.valueSize
}

func (d *SimpleDeferredSection[V]) GetCount() int {
	return len(d.values)
}

func (d *SimpleDeferredSection[V]) GetSize() uint64 {
	return uint64(len(d.values)) * d.valueSize
}

func (d *SimpleDeferredSection[V]) IsCommitted() bool {
	return d.committed
}

func (d *SimpleDeferredSection[V]) AddValue(value V) *V {
	return d.Insert(len(d.values), value)
}

func (d *SimpleDeferredSection[V]) Insert(pos int, value V) *V {
	utils.Assert(!d.committed, "%s: insert after commit", d.GetName())
	utils.Assert(pos >= 0 && pos <= len(d.values), "%s: insert position %d out of range", d.GetName(), pos)
	stored := new(V)
	*stored = value
	d.values = append(d.values, nil)
	copy(d.values[pos+1:], d.values[pos:])
	d.values[pos] = stored
	return stored
}

func (d *SimpleDeferredSection[V]) Values() []*V {
	return append([]*V(nil), d.values...)
}

func (d *SimpleDeferredSection[V]) CommitValues() {
	if d.committed {
		return
	}
	utils.Assert(len(d.data) == 0, "deferred section %q written to before commit", d.name)
	d.Section.Add(encodeValues(d.values))
	d.committed = true
}

func encodeValues[V any](values []*V) []byte {
	buf := &bytes.Buffer{}
	for _, v := range values {
		buf.Write(utils.Encode(*v))
	}
	return buf.Bytes()
}
