// Package chunk is the recompiler IR: a tree of named, addressable chunks
// owned by a Module root, walked by passes through Visitor double dispatch
// and saved to or restored from an archive stream.
package chunk

import (
	"recomp/pkg/archive"
	"recomp/pkg/utils"
)

type Kind uint8

const (
	KindModule Kind = iota
	KindFunctionList
	KindFunction
	KindPLTList
	KindPLTTrampoline
	KindJumpTableList
	KindJumpTable
	KindDataRegionList
	KindDataRegion
	KindMarkerList
	KindMarker
	kindCount
)

var kindNames = [...]string{
	KindModule:         "Module",
	KindFunctionList:   "FunctionList",
	KindFunction:       "Function",
	KindPLTList:        "PLTList",
	KindPLTTrampoline:  "PLTTrampoline",
	KindJumpTableList:  "JumpTableList",
	KindJumpTable:      "JumpTable",
	KindDataRegionList: "DataRegionList",
	KindDataRegion:     "DataRegion",
	KindMarkerList:     "MarkerList",
	KindMarker:         "Marker",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "Unknown"
}

// Chunk is a node of the IR tree. Every concrete kind lives in this package;
// impl keeps the set closed.
type Chunk interface {
	GetName() string
	SetName(name string)
	GetParent() Chunk
	SetParent(parent Chunk)
	GetPosition() Position
	SetPosition(pos Position)
	HasPosition() bool
	GetAddress() uint64
	GetSize() uint64
	SetSize(size uint64)
	AddToSize(add int64)
	// GetChildren is nil for leaf kinds.
	GetChildren() *ChildList
	Kind() Kind
	Accept(v Visitor)
	Serialize(op *SerializerOperations, w *archive.Writer)
	Deserialize(op *SerializerOperations, r *archive.Reader) bool

	impl() *ChunkImpl
	outgoingLinks() []*Link
}

// ChunkImpl carries the state shared by every kind.
type ChunkImpl struct {
	name      string
	parent    Chunk
	position  Position
	size      uint64
	referrers []*Link
}

func (c *ChunkImpl) GetName() string {
	return c.name
}

func (c *ChunkImpl) SetName(name string) {
	c.name = name
}

func (c *ChunkImpl) GetParent() Chunk {
	return c.parent
}

func (c *ChunkImpl) SetParent(parent Chunk) {
	c.parent = parent
}

func (c *ChunkImpl) GetPosition() Position {
	return c.position
}

func (c *ChunkImpl) SetPosition(pos Position) {
	c.position = pos
}

func (c *ChunkImpl) HasPosition() bool {
	return c.position != nil
}

func (c *ChunkImpl) GetAddress() uint64 {
	if c.position == nil {
		return 0
	}
	return c.position.Get()
}

func (c *ChunkImpl) GetSize() uint64 {
	return c.size
}

func (c *ChunkImpl) SetSize(size uint64) {
	c.AddToSize(int64(size) - int64(c.size))
}

// AddToSize adjusts this chunk and every ancestor by add. An ancestor sized
// by UpdateHull recomputes its hull instead.
func (c *ChunkImpl) AddToSize(add int64) {
	if add < 0 {
		utils.Assert(uint64(-add) <= c.size, "size of %q would go negative", c.name)
	}
	c.size = uint64(int64(c.size) + add)
	if c.parent == nil {
		return
	}
	if isHullSized(c.parent) {
		resizeToHull(c.parent)
		return
	}
	c.parent.AddToSize(add)
}

func (c *ChunkImpl) GetChildren() *ChildList {
	return nil
}

func (c *ChunkImpl) impl() *ChunkImpl {
	return c
}

func (c *ChunkImpl) outgoingLinks() []*Link {
	return nil
}

// Position is where a chunk lives in the address space.
type Position interface {
	Get() uint64
}

type AbsolutePosition struct {
	address uint64
}

func NewAbsolutePosition(address uint64) *AbsolutePosition {
	return &AbsolutePosition{address: address}
}

func (p *AbsolutePosition) Get() uint64 {
	return p.address
}

func (p *AbsolutePosition) Set(address uint64) {
	p.address = address
}

// OffsetPosition places a chunk at a fixed offset from its parent's address,
// so it moves whenever the parent does.
type OffsetPosition struct {
	chunk  Chunk
	offset uint64
}

func NewOffsetPosition(c Chunk, offset uint64) *OffsetPosition {
	return &OffsetPosition{chunk: c, offset: offset}
}

func (p *OffsetPosition) Get() uint64 {
	if parent := p.chunk.GetParent(); parent != nil {
		return parent.GetAddress() + p.offset
	}
	return p.offset
}

func (p *OffsetPosition) GetOffset() uint64 {
	return p.offset
}

func (p *OffsetPosition) SetOffset(offset uint64) {
	p.offset = offset
}
