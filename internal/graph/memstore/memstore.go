// Package memstore implements the in-memory storage backend: three
// hash-table mappings plus two monotonic id counters, guarded by a single
// RWMutex. It is the baseline backend every other store is built on top of
// or benchmarked against.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Store is the in-memory Engine implementation.
type Store struct {
	mu sync.RWMutex

	nextNodeID model.NodeID
	nextRelID  model.RelID

	nodes     map[model.NodeID]*model.Node
	rels      map[model.RelID]*model.Relationship
	adjacency map[model.NodeID]*model.Adjacency
}

var _ engine.Engine = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:     make(map[model.NodeID]*model.Node),
		rels:      make(map[model.RelID]*model.Relationship),
		adjacency: make(map[model.NodeID]*model.Adjacency),
	}
}

func (s *Store) nextNodeIDLocked() model.NodeID {
	s.nextNodeID++
	return s.nextNodeID
}

func (s *Store) nextRelIDLocked() model.RelID {
	s.nextRelID++
	return s.nextRelID
}

// CreateNode implements engine.Engine.
func (s *Store) CreateNode(_ context.Context, labels []string, props value.Map) (model.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextNodeIDLocked()
	labelsCopy := make([]string, len(labels))
	copy(labelsCopy, labels)
	s.nodes[id] = &model.Node{ID: id, Labels: labelsCopy, Props: props.Clone(), Version: 1}
	s.adjacency[id] = &model.Adjacency{}
	return id, nil
}

// CreateRel implements engine.Engine.
func (s *Store) CreateRel(_ context.Context, start, end model.NodeID, relType string, props value.Map) (model.RelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[start]; !ok {
		return 0, graphcode.InvalidReference("node", idString(uint64(start)))
	}
	if _, ok := s.nodes[end]; !ok {
		return 0, graphcode.InvalidReference("node", idString(uint64(end)))
	}

	id := s.nextRelIDLocked()
	s.rels[id] = &model.Relationship{ID: id, Start: start, End: end, Type: relType, Props: props.Clone(), Version: 1}
	s.adjacency[start].Outgoing = append(s.adjacency[start].Outgoing, id)
	s.adjacency[end].Incoming = append(s.adjacency[end].Incoming, id)
	return id, nil
}

// GetNode implements engine.Engine.
func (s *Store) GetNode(_ context.Context, id model.NodeID) (*model.Node, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false, nil
	}
	return n.Clone(), true, nil
}

// GetRel implements engine.Engine.
func (s *Store) GetRel(_ context.Context, id model.RelID) (*model.Relationship, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rels[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// UpdateNodeProps implements engine.Engine.
func (s *Store) UpdateNodeProps(_ context.Context, id model.NodeID, props value.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return graphcode.InvalidReference("node", idString(uint64(id)))
	}
	n.Props = props.Clone()
	n.Version++
	return nil
}

// UpdateRelProps implements engine.Engine.
func (s *Store) UpdateRelProps(_ context.Context, id model.RelID, props value.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rels[id]
	if !ok {
		return graphcode.InvalidReference("rel", idString(uint64(id)))
	}
	r.Props = props.Clone()
	r.Version++
	return nil
}

// OutgoingRels implements engine.Engine.
func (s *Store) OutgoingRels(_ context.Context, id model.NodeID) (engine.RelIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adj, ok := s.adjacency[id]
	if !ok {
		return engine.NewSliceRelIterator(nil), nil
	}
	out := make([]*model.Relationship, 0, len(adj.Outgoing))
	for _, relID := range adj.Outgoing {
		if r, ok := s.rels[relID]; ok {
			out = append(out, r.Clone())
		}
	}
	return engine.NewSliceRelIterator(out), nil
}

// IncomingRels implements engine.Engine.
func (s *Store) IncomingRels(_ context.Context, id model.NodeID) (engine.RelIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adj, ok := s.adjacency[id]
	if !ok {
		return engine.NewSliceRelIterator(nil), nil
	}
	out := make([]*model.Relationship, 0, len(adj.Incoming))
	for _, relID := range adj.Incoming {
		if r, ok := s.rels[relID]; ok {
			out = append(out, r.Clone())
		}
	}
	return engine.NewSliceRelIterator(out), nil
}

// AllNodes implements engine.Engine.
func (s *Store) AllNodes(_ context.Context) (engine.NodeIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	return engine.NewSliceNodeIterator(out), nil
}

// DeleteNode implements engine.Engine. Incident relationships are deleted
// first, per the engine contract.
func (s *Store) DeleteNode(_ context.Context, id model.NodeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return false, nil
	}

	adj := s.adjacency[id]
	for _, relID := range append(append([]model.RelID{}, adj.Outgoing...), adj.Incoming...) {
		s.deleteRelLocked(relID)
	}

	delete(s.nodes, id)
	delete(s.adjacency, id)
	return true, nil
}

// DeleteRel implements engine.Engine.
func (s *Store) DeleteRel(_ context.Context, id model.RelID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rels[id]; !ok {
		return false, nil
	}
	s.deleteRelLocked(id)
	return true, nil
}

func (s *Store) deleteRelLocked(id model.RelID) {
	r, ok := s.rels[id]
	if !ok {
		return
	}
	if adj, ok := s.adjacency[r.Start]; ok {
		adj.RemoveOutgoing(id)
	}
	if adj, ok := s.adjacency[r.End]; ok {
		adj.RemoveIncoming(id)
	}
	delete(s.rels, id)
}

// BatchCreateNodes implements engine.Engine.
func (s *Store) BatchCreateNodes(ctx context.Context, labels [][]string, props []value.Map) ([]model.NodeID, error) {
	ids := make([]model.NodeID, 0, len(labels))
	for i := range labels {
		var p value.Map
		if i < len(props) {
			p = props[i]
		}
		id, err := s.CreateNode(ctx, labels[i], p)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BatchCreateRels implements engine.Engine.
func (s *Store) BatchCreateRels(ctx context.Context, rels []engine.RelSpec) ([]model.RelID, error) {
	ids := make([]model.RelID, 0, len(rels))
	for _, spec := range rels {
		id, err := s.CreateRel(ctx, spec.Start, spec.End, spec.Type, spec.Props)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Flush is a no-op: the in-memory backend has nothing to durably flush.
func (s *Store) Flush(_ context.Context) error { return nil }

// Stats implements engine.Engine.
func (s *Store) Stats(_ context.Context) (engine.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make(map[string]struct{})
	for _, n := range s.nodes {
		for _, l := range n.Labels {
			labels[l] = struct{}{}
		}
	}
	relTypes := make(map[string]struct{})
	for _, r := range s.rels {
		relTypes[r.Type] = struct{}{}
	}

	return engine.Stats{
		NodeCount:    int64(len(s.nodes)),
		RelCount:     int64(len(s.rels)),
		LabelCount:   int64(len(labels)),
		RelTypeCount: int64(len(relTypes)),
	}, nil
}

// Close is a no-op: there are no resources to release.
func (s *Store) Close() error { return nil }

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
