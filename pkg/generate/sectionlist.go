package generate

import (
	"recomp/pkg/utils"
)

// SectionList orders the output sections of one image. File order is list
// order.
type SectionList struct {
	list      []OutputSection
	byName    map[string]OutputSection
	bySection map[*Section]OutputSection
}

func NewSectionList() *SectionList {
	return &SectionList{
		byName:    make(map[string]OutputSection),
		bySection: make(map[*Section]OutputSection),
	}
}

func (l *SectionList) Add(o OutputSection) {
	s := o.GetSection()
	_, dup := l.byName[s.name]
	utils.Assert(!dup, "duplicate section %s", s.name)
	l.list = append(l.list, o)
	l.byName[s.name] = o
	l.bySection[s] = o
}

func (l *SectionList) Len() int {
	return len(l.list)
}

func (l *SectionList) All() []OutputSection {
	return append([]OutputSection(nil), l.list...)
}

// Find returns nil for an unknown name.
func (l *SectionList) Find(name string) OutputSection {
	return l.byName[name]
}

// Of returns the output section wrapping s.
func (l *SectionList) Of(s *Section) OutputSection {
	o, ok := l.bySection[s]
	utils.Assert(ok, "%s is not in the section list", s.name)
	return o
}

func (l *SectionList) IndexOf(name string) int {
	for i, o := range l.list {
		if o.GetSection().name == name {
			return i
		}
	}
	return -1
}

// Layout assigns file offsets in list order and returns the file size.
// An allocated section with an address keeps it and is padded so that its
// offset and address agree modulo pageAlign; one without an address is
// placed at baseAddress plus its offset.
func (l *SectionList) Layout(baseAddress, pageAlign uint64) uint64 {
	offset := uint64(0)
	for _, o := range l.list {
		s := o.GetSection()
		offset = utils.AlignTo(offset, s.shdrAlign)
		if s.IsAlloc() {
			if s.address == 0 {
				s.address = baseAddress + offset
			} else if pageAlign > 1 {
				offset += (s.address%pageAlign + pageAlign - offset%pageAlign) % pageAlign
			}
		}
		s.offset = offset
		if !s.IsNobits() {
			offset += o.GetSize()
		}
	}
	return offset
}

func (l *SectionList) CommitValues() {
	for _, o := range l.list {
		o.CommitValues()
	}
}

// Write copies every committed section into a fresh file image.
func (l *SectionList) Write(fileSize uint64) []byte {
	buf := make([]byte, fileSize)
	for _, o := range l.list {
		s := o.GetSection()
		if s.IsNobits() {
			continue
		}
		utils.Assert(uint64(len(s.data)) == o.GetSize(),
			"%s holds %d bytes but reported %d", s.name, len(s.data), o.GetSize())
		copy(buf[s.offset:], s.data)
	}
	return buf
}
