// Package pass holds the passes the recomp tool runs over a module.
package pass

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"recomp/pkg/chunk"
	"recomp/pkg/log"
)

var passLog = log.Group("pass")

// DumpNode is a printable snapshot of one chunk.
type DumpNode struct {
	Kind     string      `yaml:"kind"`
	Name     string      `yaml:"name"`
	Address  string      `yaml:"address,omitempty"`
	Size     uint64      `yaml:"size"`
	Detail   string      `yaml:"detail,omitempty"`
	Children []*DumpNode `yaml:"children,omitempty"`
}

func (n *DumpNode) String() string {
	var b strings.Builder
	b.WriteString(n.Kind)
	b.WriteString(" ")
	b.WriteString(n.Name)
	if n.Address != "" {
		fmt.Fprintf(&b, " @%s", n.Address)
	}
	fmt.Fprintf(&b, " size=%#x", n.Size)
	if n.Detail != "" {
		b.WriteString(" ")
		b.WriteString(n.Detail)
	}
	return b.String()
}

func (n *DumpNode) YAML() ([]byte, error) {
	return yaml.Marshal(n)
}

// LeveledList flattens the tree in pre-order for pterm's tree printer.
func (n *DumpNode) LeveledList() pterm.LeveledList {
	var list pterm.LeveledList
	var walk func(n *DumpNode, level int)
	walk = func(n *DumpNode, level int) {
		list = append(list, pterm.LeveledListItem{Level: level, Text: n.String()})
		for _, child := range n.Children {
			walk(child, level+1)
		}
	}
	walk(n, 0)
	return list
}

// ChunkDumper handles every kind itself so nothing in the tree is skipped.
type ChunkDumper struct {
	root  *DumpNode
	stack []*DumpNode
}

// Dump snapshots the tree rooted at c.
func Dump(c chunk.Chunk) *DumpNode {
	d := &ChunkDumper{}
	c.Accept(d)
	return d.root
}

func (d *ChunkDumper) enter(c chunk.Chunk, detail string) {
	n := &DumpNode{
		Kind:   c.Kind().String(),
		Name:   c.GetName(),
		Size:   c.GetSize(),
		Detail: detail,
	}
	if c.HasPosition() {
		n.Address = fmt.Sprintf("%#x", c.GetAddress())
	}
	if len(d.stack) == 0 {
		d.root = n
	} else {
		parent := d.stack[len(d.stack)-1]
		parent.Children = append(parent.Children, n)
	}
	passLog.Logf(9, "dump %s", n)

	d.stack = append(d.stack, n)
	chunk.VisitChildren(d, c)
	d.stack = d.stack[:len(d.stack)-1]
}

func targetName(c chunk.Chunk) string {
	if c == nil {
		return "(none)"
	}
	return c.GetName()
}

func (d *ChunkDumper) VisitModule(module *chunk.Module) {
	d.enter(module, "")
}

func (d *ChunkDumper) VisitFunctionList(functionList *chunk.FunctionList) {
	d.enter(functionList, "")
}

func (d *ChunkDumper) VisitFunction(function *chunk.Function) {
	d.enter(function, "")
}

func (d *ChunkDumper) VisitPLTList(pltList *chunk.PLTList) {
	d.enter(pltList, "")
}

func (d *ChunkDumper) VisitPLTTrampoline(trampoline *chunk.PLTTrampoline) {
	d.enter(trampoline, "-> "+targetName(trampoline.GetTarget()))
}

func (d *ChunkDumper) VisitJumpTableList(jumpTableList *chunk.JumpTableList) {
	d.enter(jumpTableList, "")
}

func (d *ChunkDumper) VisitJumpTable(jumpTable *chunk.JumpTable) {
	names := make([]string, 0, jumpTable.GetEntryCount())
	for _, target := range jumpTable.GetTargets() {
		names = append(names, targetName(target))
	}
	d.enter(jumpTable, fmt.Sprintf("in %s entries=[%s]",
		targetName(jumpTable.GetFunction()), strings.Join(names, ",")))
}

func (d *ChunkDumper) VisitDataRegionList(dataRegionList *chunk.DataRegionList) {
	d.enter(dataRegionList, "")
}

func (d *ChunkDumper) VisitDataRegion(dataRegion *chunk.DataRegion) {
	d.enter(dataRegion, fmt.Sprintf("perm=%s data=%d", permString(dataRegion.GetPermissions()), len(dataRegion.GetData())))
}

func (d *ChunkDumper) VisitMarkerList(markerList *chunk.MarkerList) {
	d.enter(markerList, "")
}

func (d *ChunkDumper) VisitMarker(marker *chunk.Marker) {
	d.enter(marker, fmt.Sprintf("= %s+%#x", targetName(marker.GetBase()), marker.GetOffset()))
}

func permString(perm uint32) string {
	b := []byte("---")
	if perm&chunk.PermRead != 0 {
		b[0] = 'r'
	}
	if perm&chunk.PermWrite != 0 {
		b[1] = 'w'
	}
	if perm&chunk.PermExecute != 0 {
		b[2] = 'x'
	}
	return string(b)
}
