package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func sampleState() (map[model.NodeID]*model.Node, map[model.RelID]*model.Relationship, map[model.NodeID]*model.Adjacency) {
	nodes := map[model.NodeID]*model.Node{
		1: {ID: 1, Labels: []string{"User"}, Props: value.Map{"name": value.Text("Alice")}, Version: 1},
	}
	rels := map[model.RelID]*model.Relationship{}
	adjacency := map[model.NodeID]*model.Adjacency{
		1: {},
	}
	return nodes, rels, adjacency
}

func TestTakeIsDeepCopy(t *testing.T) {
	nodes, rels, adjacency := sampleState()
	mgr := NewManager(4)

	snap := mgr.Take(nodes, rels, adjacency)
	require.NotEmpty(t, snap.ID)

	nodes[1].Props["name"] = value.Text("Bob")
	nodes[1].Labels = append(nodes[1].Labels, "Admin")

	require.Equal(t, "Alice", mustText(t, snap.Nodes[1].Props["name"]))
	require.Equal(t, []string{"User"}, snap.Nodes[1].Labels)
}

func TestBoundedFIFOEvictsOldest(t *testing.T) {
	nodes, rels, adjacency := sampleState()
	mgr := NewManager(2)

	first := mgr.Take(nodes, rels, adjacency)
	mgr.Take(nodes, rels, adjacency)
	third := mgr.Take(nodes, rels, adjacency)

	require.Equal(t, 2, mgr.Len())
	_, ok := mgr.Get(first.ID)
	require.False(t, ok, "oldest snapshot should have been evicted")
	_, ok = mgr.Get(third.ID)
	require.True(t, ok)
}

func TestZeroCapacityDoesNotRetain(t *testing.T) {
	nodes, rels, adjacency := sampleState()
	mgr := NewManager(0)

	snap := mgr.Take(nodes, rels, adjacency)
	require.NotNil(t, snap)
	require.Equal(t, 0, mgr.Len())
	_, ok := mgr.Get(snap.ID)
	require.False(t, ok)
}

func mustText(t *testing.T, v value.Value) string {
	t.Helper()
	s, ok := v.AsText()
	require.True(t, ok)
	return s
}
