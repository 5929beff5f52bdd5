// Package model defines the graph's core entities: Node, Relationship, and
// the adjacency lists that connect them. Every cross-reference between
// entities is an id, never a pointer, so storage backends can keep nodes
// and relationships in separate arenas (maps, bbolt buckets, or otherwise).
package model

import (
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// NodeID is a 64-bit identifier, monotonically allocated and unique within
// one engine instance.
type NodeID uint64

// RelID is a 64-bit identifier, monotonically allocated and unique within
// one engine instance.
type RelID uint64

// Node is a labeled, property-bearing vertex. Nodes are created by the
// storage engine (which assigns ID), mutated only through engine
// operations, and destroyed by explicit delete — which must also delete
// every relationship with the node as an endpoint.
type Node struct {
	ID      NodeID
	Labels  []string
	Props   value.Map
	Version uint64
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n safe to hand to a caller without aliasing
// the engine's internal state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	labels := make([]string, len(n.Labels))
	copy(labels, n.Labels)
	return &Node{
		ID:      n.ID,
		Labels:  labels,
		Props:   n.Props.Clone(),
		Version: n.Version,
	}
}

// Relationship is a directed, typed, property-bearing edge between two
// nodes. Both endpoints must refer to existing nodes at creation time.
// Relationships are created, mutated, and destroyed only through the
// engine; deleting one removes it from both endpoints' adjacency.
type Relationship struct {
	ID      RelID
	Start   NodeID
	End     NodeID
	Type    string
	Props   value.Map
	Version uint64
}

// Clone returns a deep copy of r.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	return &Relationship{
		ID:      r.ID,
		Start:   r.Start,
		End:     r.End,
		Type:    r.Type,
		Props:   r.Props.Clone(),
		Version: r.Version,
	}
}

// Adjacency holds, for a single node, the ordered list of outgoing and
// incoming relationship ids. Every listed RelID must resolve to a live
// relationship whose start/end matches the owning node.
type Adjacency struct {
	Outgoing []RelID
	Incoming []RelID
}

// RemoveOutgoing removes the first occurrence of id from Outgoing, if
// present, preserving the order of the remainder.
func (a *Adjacency) RemoveOutgoing(id RelID) {
	a.Outgoing = removeID(a.Outgoing, id)
}

// RemoveIncoming removes the first occurrence of id from Incoming, if
// present, preserving the order of the remainder.
func (a *Adjacency) RemoveIncoming(id RelID) {
	a.Incoming = removeID(a.Incoming, id)
}

func removeID(ids []RelID, target RelID) []RelID {
	for i, id := range ids {
		if id == target {
			out := make([]RelID, 0, len(ids)-1)
			out = append(out, ids[:i]...)
			out = append(out, ids[i+1:]...)
			return out
		}
	}
	return ids
}
