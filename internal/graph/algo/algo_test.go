package algo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/algo"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func buildLinearGraph(t *testing.T) (*memstore.Store, []model.NodeID) {
	t.Helper()
	ctx := context.Background()
	eng := memstore.New()
	ids := make([]model.NodeID, 4)
	for i := range ids {
		id, err := eng.CreateNode(ctx, []string{"N"}, value.Map{})
		require.NoError(t, err)
		ids[i] = id
	}
	// a->b->d and a->c->d (diamond)
	_, err := eng.CreateRel(ctx, ids[0], ids[1], "EDGE", value.Map{})
	require.NoError(t, err)
	_, err = eng.CreateRel(ctx, ids[1], ids[3], "EDGE", value.Map{})
	require.NoError(t, err)
	_, err = eng.CreateRel(ctx, ids[0], ids[2], "EDGE", value.Map{})
	require.NoError(t, err)
	_, err = eng.CreateRel(ctx, ids[2], ids[3], "EDGE", value.Map{})
	require.NoError(t, err)
	return eng, ids
}

func TestAllShortestPathsDiamond(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)

	paths, err := algo.AllShortestPaths(ctx, eng, ids[0], ids[3])
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		require.Len(t, p, 3)
		require.Equal(t, ids[0], p[0])
		require.Equal(t, ids[3], p[2])
	}
}

func TestShortestPathUnreachable(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	a, err := eng.CreateNode(ctx, nil, value.Map{})
	require.NoError(t, err)
	b, err := eng.CreateNode(ctx, nil, value.Map{})
	require.NoError(t, err)

	_, ok, err := algo.ShortestPath(ctx, eng, a, b)
	require.NoError(t, err)
	require.False(t, ok)

	has, err := algo.HasPath(ctx, eng, a, b)
	require.NoError(t, err)
	require.False(t, has)
}

func TestConnectedComponentsPartition(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)
	isolated, err := eng.CreateNode(ctx, nil, value.Map{})
	require.NoError(t, err)

	comps, err := algo.ConnectedComponents(ctx, eng)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	var sawIsolated bool
	for _, c := range comps {
		if len(c) == 1 && c[0] == isolated {
			sawIsolated = true
		}
	}
	require.True(t, sawIsolated)
	_ = ids
}

func TestSCCCycle(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	a, _ := eng.CreateNode(ctx, nil, value.Map{})
	b, _ := eng.CreateNode(ctx, nil, value.Map{})
	c, _ := eng.CreateNode(ctx, nil, value.Map{})
	d, _ := eng.CreateNode(ctx, nil, value.Map{})
	_, _ = eng.CreateRel(ctx, a, b, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, b, c, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, c, a, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, c, d, "E", value.Map{})

	comps, err := algo.SCC(ctx, eng)
	require.NoError(t, err)

	var cycleComp, dComp []model.NodeID
	for _, comp := range comps {
		if containsID(comp, d) {
			dComp = comp
		}
		if containsID(comp, a) {
			cycleComp = comp
		}
	}
	require.Len(t, cycleComp, 3)
	require.Len(t, dComp, 1)
}

func containsID(ids []model.NodeID, target model.NodeID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func TestPageRankSumsToOne(t *testing.T) {
	ctx := context.Background()
	eng, _ := buildLinearGraph(t)

	ranks, err := algo.PageRank(ctx, eng, algo.DefaultDamping, 50)
	require.NoError(t, err)

	var sum float64
	for _, r := range ranks {
		sum += r
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestKCorePeelsLowDegreeNodes(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	// Triangle (3-core candidates with degree 2 each -> 2-core) plus a
	// pendant leaf with degree 1.
	a, _ := eng.CreateNode(ctx, nil, value.Map{})
	b, _ := eng.CreateNode(ctx, nil, value.Map{})
	c, _ := eng.CreateNode(ctx, nil, value.Map{})
	leaf, _ := eng.CreateNode(ctx, nil, value.Map{})
	_, _ = eng.CreateRel(ctx, a, b, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, b, c, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, c, a, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, a, leaf, "E", value.Map{})

	core, err := algo.KCore(ctx, eng, 2)
	require.NoError(t, err)
	require.Len(t, core, 3)
	require.False(t, containsID(core, leaf))
}

func TestTriangleCount(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	a, _ := eng.CreateNode(ctx, nil, value.Map{})
	b, _ := eng.CreateNode(ctx, nil, value.Map{})
	c, _ := eng.CreateNode(ctx, nil, value.Map{})
	_, _ = eng.CreateRel(ctx, a, b, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, b, c, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, c, a, "E", value.Map{})

	n, err := algo.TriangleCount(ctx, eng)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestAStarFindsPath(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)

	path, ok, err := algo.AStar(ctx, eng, ids[0], ids[3],
		func(model.NodeID) float64 { return 0 },
		func(model.NodeID, model.NodeID) float64 { return 1 })
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, path, 3)
}

func TestDegreeCentralityNormalized(t *testing.T) {
	ctx := context.Background()
	eng, _ := buildLinearGraph(t)

	cent, err := algo.DegreeCentrality(ctx, eng)
	require.NoError(t, err)
	for _, v := range cent {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestLouvainGroupsTriangleTogether(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	a, _ := eng.CreateNode(ctx, nil, value.Map{})
	b, _ := eng.CreateNode(ctx, nil, value.Map{})
	c, _ := eng.CreateNode(ctx, nil, value.Map{})
	_, _ = eng.CreateRel(ctx, a, b, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, b, c, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, c, a, "E", value.Map{})

	communities, err := algo.Louvain(ctx, eng, 10)
	require.NoError(t, err)
	require.Equal(t, communities[a], communities[b])
	require.Equal(t, communities[b], communities[c])
}

func TestBFSVisitsInBreadthOrder(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)

	order, err := algo.BFS(ctx, eng, ids[0], false)
	require.NoError(t, err)
	require.Len(t, order, 4)
	require.Equal(t, ids[0], order[0])
	// b and c are both depth 1; d is depth 2 and must come last.
	require.Equal(t, ids[3], order[3])
}

func TestDFSReachesEveryNode(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)

	order, err := algo.DFS(ctx, eng, ids[0], false)
	require.NoError(t, err)
	require.Len(t, order, 4)
	require.Equal(t, ids[0], order[0])
}

func TestDijkstraDistancesOnDiamond(t *testing.T) {
	ctx := context.Background()
	eng, ids := buildLinearGraph(t)

	dist, _, err := algo.Dijkstra(ctx, eng, ids[0])
	require.NoError(t, err)
	require.Equal(t, 0.0, dist[ids[0]])
	require.Equal(t, 1.0, dist[ids[1]])
	require.Equal(t, 1.0, dist[ids[2]])
	require.Equal(t, 2.0, dist[ids[3]])
}

func TestBetweennessCentralityPathMiddle(t *testing.T) {
	ctx := context.Background()
	eng := memstore.New()
	a, _ := eng.CreateNode(ctx, nil, value.Map{})
	b, _ := eng.CreateNode(ctx, nil, value.Map{})
	c, _ := eng.CreateNode(ctx, nil, value.Map{})
	_, _ = eng.CreateRel(ctx, a, b, "E", value.Map{})
	_, _ = eng.CreateRel(ctx, b, c, "E", value.Map{})

	cent, err := algo.BetweennessCentrality(ctx, eng)
	require.NoError(t, err)
	// Only b sits on a shortest path between two other nodes.
	require.Greater(t, cent[b], cent[a])
	require.Greater(t, cent[b], cent[c])
	for _, v := range cent {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}
