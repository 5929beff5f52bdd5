package index

import (
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// CompositeStats tracks per-index counters: insert/delete/query counts,
// distinct-key count, and total entries.
type CompositeStats struct {
	Inserts     int64
	Deletes     int64
	Queries     int64
	DistinctKeys int64
	TotalEntries int64
}

// Selectivity is distinct_keys / total_entries, or 0 if empty.
func (s CompositeStats) Selectivity() float64 {
	if s.TotalEntries == 0 {
		return 0
	}
	return float64(s.DistinctKeys) / float64(s.TotalEntries)
}

type compositeEntry struct {
	values []value.Value
	ids    map[model.NodeID]struct{}
}

// CompositeIndex is keyed by the ordered tuple of values for Properties.
// It supports exact lookup with the full tuple and prefix lookup with any
// leading subset, via ordered iteration over a sorted key space.
type CompositeIndex struct {
	Name       string
	Label      string
	Properties []string

	entries []compositeEntry
	dirty   bool

	inserts, deletes, queries int64
}

// NewCompositeIndex returns an empty composite index for decl.
func NewCompositeIndex(decl Declaration) *CompositeIndex {
	return &CompositeIndex{Name: decl.Name, Label: decl.Label, Properties: decl.Properties}
}

// Add inserts id under the ordered tuple values (must align 1:1 with
// Properties).
func (idx *CompositeIndex) Add(values []value.Value, id model.NodeID) {
	for i := range idx.entries {
		if tupleEqual(idx.entries[i].values, values) {
			idx.entries[i].ids[id] = struct{}{}
			idx.inserts++
			return
		}
	}
	idx.entries = append(idx.entries, compositeEntry{values: values, ids: map[model.NodeID]struct{}{id: {}}})
	idx.dirty = true
	idx.inserts++
}

// Remove deletes id from the tuple.
func (idx *CompositeIndex) Remove(values []value.Value, id model.NodeID) {
	for i := range idx.entries {
		if tupleEqual(idx.entries[i].values, values) {
			delete(idx.entries[i].ids, id)
			idx.deletes++
			return
		}
	}
}

func tupleEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (idx *CompositeIndex) ensureSorted() {
	if !idx.dirty {
		return
	}
	sort.Slice(idx.entries, func(i, j int) bool { return tupleLess(idx.entries[i].values, idx.entries[j].values) })
	idx.dirty = false
}

func tupleLess(a, b []value.Value) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Less(b[i]) {
			return true
		}
		if b[i].Less(a[i]) {
			return false
		}
	}
	return len(a) < len(b)
}

// Exact performs a full-tuple lookup.
func (idx *CompositeIndex) Exact(values []value.Value) []model.NodeID {
	idx.queries++
	for _, e := range idx.entries {
		if tupleEqual(e.values, values) {
			return sortedNodeIDs(e.ids)
		}
	}
	return nil
}

// Prefix performs a leading-subset lookup: every entry whose first
// len(prefix) values equal prefix, found by ordered iteration over the
// sorted key space.
func (idx *CompositeIndex) Prefix(prefix []value.Value) []model.NodeID {
	idx.queries++
	idx.ensureSorted()

	result := make(map[model.NodeID]struct{})
	for _, e := range idx.entries {
		if len(e.values) < len(prefix) {
			continue
		}
		match := true
		for i, v := range prefix {
			if !e.values[i].Equal(v) {
				match = false
				break
			}
		}
		if match {
			for id := range e.ids {
				result[id] = struct{}{}
			}
		}
	}
	return sortedNodeIDs(result)
}

// Stats reports the index's current counters.
func (idx *CompositeIndex) Stats() CompositeStats {
	var total int64
	for _, e := range idx.entries {
		total += int64(len(e.ids))
	}
	return CompositeStats{
		Inserts:      idx.inserts,
		Deletes:      idx.deletes,
		Queries:      idx.queries,
		DistinctKeys: int64(len(idx.entries)),
		TotalEntries: total,
	}
}
