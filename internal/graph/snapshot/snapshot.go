// Package snapshot implements the bounded FIFO of point-in-time snapshots
// a transaction manager captures at Begin when snapshot-mode is enabled
// (its Rollback discards staged writes and never reads one). A snapshot is a deep copy of the node, relationship, and
// adjacency maps; taking one is O(|V|+|E|), matching the rebuild cost the
// index manager accepts for the same reason.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

// Snapshot is an immutable point-in-time copy of the engine's node,
// relationship, and adjacency state.
type Snapshot struct {
	ID        string
	Timestamp time.Time

	Nodes     map[model.NodeID]*model.Node
	Rels      map[model.RelID]*model.Relationship
	Adjacency map[model.NodeID]*model.Adjacency
}

// Manager owns a bounded FIFO of snapshots; when the configured max count
// is exceeded, the oldest snapshot is evicted.
type Manager struct {
	max   int
	order []string
	byID  map[string]*Snapshot
}

// NewManager returns a Manager retaining at most maxSnapshots snapshots.
// A non-positive maxSnapshots disables retention: Take still returns a
// usable Snapshot, but nothing is kept for later lookup.
func NewManager(maxSnapshots int) *Manager {
	return &Manager{
		max:  maxSnapshots,
		byID: make(map[string]*Snapshot),
	}
}

// Take deep-copies nodes, rels, and adjacency into a new retained
// Snapshot, evicting the oldest if the manager is at capacity.
func (m *Manager) Take(nodes map[model.NodeID]*model.Node, rels map[model.RelID]*model.Relationship, adjacency map[model.NodeID]*model.Adjacency) *Snapshot {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Nodes:     cloneNodes(nodes),
		Rels:      cloneRels(rels),
		Adjacency: cloneAdjacency(adjacency),
	}
	if m.max <= 0 {
		return snap
	}
	m.byID[snap.ID] = snap
	m.order = append(m.order, snap.ID)
	if len(m.order) > m.max {
		evict := m.order[0]
		m.order = m.order[1:]
		delete(m.byID, evict)
	}
	return snap
}

// Get returns the retained snapshot with the given id.
func (m *Manager) Get(id string) (*Snapshot, bool) {
	s, ok := m.byID[id]
	return s, ok
}

// Len returns the number of snapshots currently retained.
func (m *Manager) Len() int { return len(m.order) }

func cloneNodes(in map[model.NodeID]*model.Node) map[model.NodeID]*model.Node {
	out := make(map[model.NodeID]*model.Node, len(in))
	for id, n := range in {
		out[id] = n.Clone()
	}
	return out
}

func cloneRels(in map[model.RelID]*model.Relationship) map[model.RelID]*model.Relationship {
	out := make(map[model.RelID]*model.Relationship, len(in))
	for id, r := range in {
		out[id] = r.Clone()
	}
	return out
}

func cloneAdjacency(in map[model.NodeID]*model.Adjacency) map[model.NodeID]*model.Adjacency {
	out := make(map[model.NodeID]*model.Adjacency, len(in))
	for id, a := range in {
		out[id] = &model.Adjacency{
			Outgoing: append([]model.RelID{}, a.Outgoing...),
			Incoming: append([]model.RelID{}, a.Incoming...),
		}
	}
	return out
}
