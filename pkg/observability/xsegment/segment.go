package xsegment

import (
	"maps"
	"slices"
)

// Segment 描述一个段文件的快照。
type Segment struct {
	// Index 段索引，编码在文件名中
	Index uint64
	// Path 段文件路径，由目录和索引推导
	Path string
	// Length 当前字节长度（内存中的权威值）
	Length int64
}

// segmentSet 以索引为键的段集合，由 Engine 独占。
type segmentSet struct {
	items map[uint64]*Segment
}

func newSegmentSet() *segmentSet {
	return &segmentSet{items: make(map[uint64]*Segment)}
}

func (s *segmentSet) len() int {
	return len(s.items)
}

func (s *segmentSet) add(seg *Segment) {
	s.items[seg.Index] = seg
}

func (s *segmentSet) remove(index uint64) {
	delete(s.items, index)
}

// max 返回索引最大的段，集合为空时返回 nil。
func (s *segmentSet) max() *Segment {
	var found *Segment
	for _, seg := range s.items {
		if found == nil || seg.Index > found.Index {
			found = seg
		}
	}
	return found
}

// min 返回索引最小的段，集合为空时返回 nil。
func (s *segmentSet) min() *Segment {
	var found *Segment
	for _, seg := range s.items {
		if found == nil || seg.Index < found.Index {
			found = seg
		}
	}
	return found
}

// snapshot 按索引升序返回段的副本。
func (s *segmentSet) snapshot() []Segment {
	out := make([]Segment, 0, len(s.items))
	for _, index := range slices.Sorted(maps.Keys(s.items)) {
		out = append(out, *s.items[index])
	}
	return out
}
