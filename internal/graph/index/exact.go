package index

import (
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// ExactIndex maps (label, property, value) to a sorted unique NodeId
// list. Value encoding covers Int, Bool, and Text; Float is excluded —
// range queries cover floats instead.
type ExactIndex struct {
	entries map[propKey]map[any]map[model.NodeID]struct{}
}

// NewExactIndex returns an empty exact index.
func NewExactIndex() *ExactIndex {
	return &ExactIndex{entries: make(map[propKey]map[any]map[model.NodeID]struct{})}
}

// Add inserts id under (label, property, v). v must not be a Float.
func (idx *ExactIndex) Add(label, property string, v value.Value, id model.NodeID) {
	if v.Kind() == value.KindFloat {
		return
	}
	key := propKey{label, property}
	byValue, ok := idx.entries[key]
	if !ok {
		byValue = make(map[any]map[model.NodeID]struct{})
		idx.entries[key] = byValue
	}
	set, ok := byValue[v.HashKey()]
	if !ok {
		set = make(map[model.NodeID]struct{})
		byValue[v.HashKey()] = set
	}
	set[id] = struct{}{}
}

// Remove deletes id from (label, property, v).
func (idx *ExactIndex) Remove(label, property string, v value.Value, id model.NodeID) {
	byValue, ok := idx.entries[propKey{label, property}]
	if !ok {
		return
	}
	set, ok := byValue[v.HashKey()]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(byValue, v.HashKey())
	}
}

// Find returns the sorted, unique NodeId list for (label, property, v).
func (idx *ExactIndex) Find(label, property string, v value.Value) []model.NodeID {
	byValue, ok := idx.entries[propKey{label, property}]
	if !ok {
		return nil
	}
	set, ok := byValue[v.HashKey()]
	if !ok {
		return nil
	}
	return sortedNodeIDs(set)
}
