// Package engine defines the storage-backend contract shared by every
// backing store (memory, disk, buffered, hybrid, async). Each backend in
// internal/graph/{memstore,diskstore,bufferstore,hybridstore,asyncstore}
// implements Engine against its own tradeoffs between durability, latency,
// and throughput.
package engine

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// NodeIterator is a lazy sequence of nodes. Next returns (nil, false) once
// exhausted; callers must call Close when done early.
type NodeIterator interface {
	Next() (*model.Node, bool)
	Close()
}

// RelIterator is a lazy sequence of relationships.
type RelIterator interface {
	Next() (*model.Relationship, bool)
	Close()
}

// Engine is the abstract storage contract every backend implements.
// Implementations must guarantee: monotonic id allocation, atomic
// bidirectional adjacency updates on relationship create/delete, and that
// delete_node first removes every incident relationship.
type Engine interface {
	CreateNode(ctx context.Context, labels []string, props value.Map) (model.NodeID, error)
	CreateRel(ctx context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error)

	GetNode(ctx context.Context, id model.NodeID) (*model.Node, bool, error)
	GetRel(ctx context.Context, id model.RelID) (*model.Relationship, bool, error)

	UpdateNodeProps(ctx context.Context, id model.NodeID, props value.Map) error
	UpdateRelProps(ctx context.Context, id model.RelID, props value.Map) error

	OutgoingRels(ctx context.Context, id model.NodeID) (RelIterator, error)
	IncomingRels(ctx context.Context, id model.NodeID) (RelIterator, error)
	AllNodes(ctx context.Context) (NodeIterator, error)

	DeleteNode(ctx context.Context, id model.NodeID) (bool, error)
	DeleteRel(ctx context.Context, id model.RelID) (bool, error)

	BatchCreateNodes(ctx context.Context, labels [][]string, props []value.Map) ([]model.NodeID, error)
	BatchCreateRels(ctx context.Context, rels []RelSpec) ([]model.RelID, error)

	// Flush forces any buffered mutations to their durable destination.
	// Backends without buffering treat this as a no-op.
	Flush(ctx context.Context) error

	// Stats reports point-in-time counters for the /stats surface.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources (file handles, goroutines) the backend
	// holds open.
	Close() error
}

// RelSpec describes one relationship to create in a batch.
type RelSpec struct {
	Start model.NodeID
	End   model.NodeID
	Type  string
	Props value.Map
}

// Stats reports engine-wide counters.
type Stats struct {
	NodeCount  int64
	RelCount   int64
	LabelCount int64
	RelTypeCount int64
}

// SliceNodeIterator adapts a pre-materialized slice of nodes into a
// NodeIterator, for backends (like the in-memory store) that build their
// result set eagerly.
type SliceNodeIterator struct {
	nodes []*model.Node
	pos   int
}

// NewSliceNodeIterator wraps nodes as a NodeIterator.
func NewSliceNodeIterator(nodes []*model.Node) *SliceNodeIterator {
	return &SliceNodeIterator{nodes: nodes}
}

// Next implements NodeIterator.
func (it *SliceNodeIterator) Next() (*model.Node, bool) {
	if it.pos >= len(it.nodes) {
		return nil, false
	}
	n := it.nodes[it.pos]
	it.pos++
	return n, true
}

// Close implements NodeIterator.
func (it *SliceNodeIterator) Close() {}

// SliceRelIterator adapts a pre-materialized slice of relationships.
type SliceRelIterator struct {
	rels []*model.Relationship
	pos  int
}

// NewSliceRelIterator wraps rels as a RelIterator.
func NewSliceRelIterator(rels []*model.Relationship) *SliceRelIterator {
	return &SliceRelIterator{rels: rels}
}

// Next implements RelIterator.
func (it *SliceRelIterator) Next() (*model.Relationship, bool) {
	if it.pos >= len(it.rels) {
		return nil, false
	}
	r := it.rels[it.pos]
	it.pos++
	return r, true
}

// Close implements RelIterator.
func (it *SliceRelIterator) Close() {}

// Drain collects every remaining node from it into a slice and closes it.
func Drain(it NodeIterator) []*model.Node {
	defer it.Close()
	var out []*model.Node
	for {
		n, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, n)
	}
}

// DrainRels collects every remaining relationship from it into a slice
// and closes it.
func DrainRels(it RelIterator) []*model.Relationship {
	defer it.Close()
	var out []*model.Relationship
	for {
		r, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}
