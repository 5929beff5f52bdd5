package index

import (
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// RangeOp identifies a range-index comparison operator.
type RangeOp int

const (
	OpGT RangeOp = iota
	OpGE
	OpLT
	OpLE
	OpBetween
)

// rangeBucket is one (label, property) range index, maintained as two
// ordered-by-value slices (Int and Float kept separate, per spec). Each
// slice is sorted and re-sorted lazily: inserts/removes just mark the
// index dirty, so a burst of writes pays one sort, not one per write.
type rangeBucket struct {
	intEntries   []rangeEntry
	floatEntries []rangeEntry
	intDirty     bool
	floatDirty   bool
}

type rangeEntry struct {
	num   float64
	value value.Value
	ids   map[model.NodeID]struct{}
}

// RangeIndex implements the range index kind: per (label, property),
// ordered maps from numeric value to NodeId set, with Int and Float
// tracked independently so a query specifying one type never touches the
// other's map.
type RangeIndex struct {
	buckets map[propKey]*rangeBucket
}

// NewRangeIndex returns an empty range index.
func NewRangeIndex() *RangeIndex {
	return &RangeIndex{buckets: make(map[propKey]*rangeBucket)}
}

func (idx *RangeIndex) bucket(label, property string) *rangeBucket {
	key := propKey{label, property}
	b, ok := idx.buckets[key]
	if !ok {
		b = &rangeBucket{}
		idx.buckets[key] = b
	}
	return b
}

// Add inserts id under (label, property, v). v must be Int or Float.
func (idx *RangeIndex) Add(label, property string, v value.Value, id model.NodeID) {
	num, ok := v.Float64()
	if !ok {
		return
	}
	b := idx.bucket(label, property)
	entries, dirty := b.entriesFor(v)
	for i := range *entries {
		if (*entries)[i].value.Equal(v) {
			(*entries)[i].ids[id] = struct{}{}
			return
		}
	}
	*entries = append(*entries, rangeEntry{num: num, value: v, ids: map[model.NodeID]struct{}{id: {}}})
	*dirty = true
}

// Remove deletes id from (label, property, v).
func (idx *RangeIndex) Remove(label, property string, v value.Value, id model.NodeID) {
	b, ok := idx.buckets[propKey{label, property}]
	if !ok {
		return
	}
	entries, _ := b.entriesFor(v)
	for i := range *entries {
		if (*entries)[i].value.Equal(v) {
			delete((*entries)[i].ids, id)
			return
		}
	}
}

func (b *rangeBucket) entriesFor(v value.Value) (*[]rangeEntry, *bool) {
	if v.Kind() == value.KindInt {
		return &b.intEntries, &b.intDirty
	}
	return &b.floatEntries, &b.floatDirty
}

func (b *rangeBucket) sorted(isInt bool) []rangeEntry {
	entries, dirty := &b.floatEntries, &b.floatDirty
	if isInt {
		entries, dirty = &b.intEntries, &b.intDirty
	}
	if *dirty {
		sort.Slice(*entries, func(i, j int) bool { return (*entries)[i].num < (*entries)[j].num })
		*dirty = false
	}
	return *entries
}

// Query returns the sorted, unique NodeId list matching op against bound
// (and hi for OpBetween), consulting only the Int or Float map according
// to bound's kind.
func (idx *RangeIndex) Query(label, property string, op RangeOp, bound value.Value, hi value.Value) []model.NodeID {
	b, ok := idx.buckets[propKey{label, property}]
	if !ok {
		return nil
	}
	isInt := bound.Kind() == value.KindInt
	entries := b.sorted(isInt)

	lo, _ := bound.Float64()
	var hiNum float64
	if op == OpBetween {
		hiNum, _ = hi.Float64()
	}

	result := make(map[model.NodeID]struct{})
	for _, e := range entries {
		var match bool
		switch op {
		case OpGT:
			match = e.num > lo
		case OpGE:
			match = e.num >= lo
		case OpLT:
			match = e.num < lo
		case OpLE:
			match = e.num <= lo
		case OpBetween:
			match = e.num >= lo && e.num <= hiNum
		}
		if match {
			for id := range e.ids {
				result[id] = struct{}{}
			}
		}
	}
	return sortedNodeIDs(result)
}
