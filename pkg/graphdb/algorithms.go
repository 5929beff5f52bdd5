package graphdb

import (
	"context"
	"time"

	"github.com/r3e-network/graphdb/internal/graph/algo"
	"github.com/r3e-network/graphdb/pkg/metrics"
)

// The graph algorithm library stays free functions over the storage
// engine; these methods only add the metrics wrapper. Each call is
// timed into pkg/metrics' algorithm-duration histogram.

// Heuristic and CostFunc mirror algo's A* callback types so callers
// don't need to import internal/graph/algo directly.
type (
	Heuristic = algo.Heuristic
	CostFunc  = algo.CostFunc
)

func timed(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordAlgorithmRun(name, time.Since(start))
	return err
}

// BFS returns node ids reached from start by breadth-first search.
func (g *Graph) BFS(ctx context.Context, start NodeID, undirected bool) ([]NodeID, error) {
	var out []NodeID
	err := timed("bfs", func() error {
		var err error
		out, err = algo.BFS(ctx, g.engine, start, undirected)
		return err
	})
	return out, err
}

// DFS returns node ids reached from start by depth-first search.
func (g *Graph) DFS(ctx context.Context, start NodeID, undirected bool) ([]NodeID, error) {
	var out []NodeID
	err := timed("dfs", func() error {
		var err error
		out, err = algo.DFS(ctx, g.engine, start, undirected)
		return err
	})
	return out, err
}

// HasPath reports whether end is reachable from start via outgoing
// edges.
func (g *Graph) HasPath(ctx context.Context, start, end NodeID) (bool, error) {
	var out bool
	err := timed("has_path", func() error {
		var err error
		out, err = algo.HasPath(ctx, g.engine, start, end)
		return err
	})
	return out, err
}

// ShortestPath returns one minimum-length path from start to end (by
// hop count) via Dijkstra over uniform edge weight.
func (g *Graph) ShortestPath(ctx context.Context, start, end NodeID) ([]NodeID, bool, error) {
	var path []NodeID
	var found bool
	err := timed("shortest_path", func() error {
		var err error
		path, found, err = algo.ShortestPath(ctx, g.engine, start, end)
		return err
	})
	return path, found, err
}

// AllShortestPaths returns every path of minimum length from start to
// end.
func (g *Graph) AllShortestPaths(ctx context.Context, start, end NodeID) ([][]NodeID, error) {
	var out [][]NodeID
	err := timed("all_shortest_paths", func() error {
		var err error
		out, err = algo.AllShortestPaths(ctx, g.engine, start, end)
		return err
	})
	return out, err
}

// AStar returns a shortest path from start to end using heuristic h and
// cost function cost; h must be admissible for the result to be optimal.
func (g *Graph) AStar(ctx context.Context, start, end NodeID, h Heuristic, cost CostFunc) ([]NodeID, bool, error) {
	var path []NodeID
	var found bool
	err := timed("astar", func() error {
		var err error
		path, found, err = algo.AStar(ctx, g.engine, start, end, h, cost)
		return err
	})
	return path, found, err
}

// Dijkstra returns single-source distances and predecessors over
// uniform edge weight.
func (g *Graph) Dijkstra(ctx context.Context, start NodeID) (map[NodeID]float64, map[NodeID]NodeID, error) {
	var dist map[NodeID]float64
	var prev map[NodeID]NodeID
	err := timed("dijkstra", func() error {
		var err error
		dist, prev, err = algo.Dijkstra(ctx, g.engine, start)
		return err
	})
	return dist, prev, err
}

// PageRank computes PageRank over the whole graph with the given
// damping factor and fixed iteration count.
func (g *Graph) PageRank(ctx context.Context, damping float64, iterations int) (map[NodeID]float64, error) {
	var out map[NodeID]float64
	err := timed("pagerank", func() error {
		var err error
		out, err = algo.PageRank(ctx, g.engine, damping, iterations)
		return err
	})
	return out, err
}

// Louvain runs simplified single-level greedy community detection,
// returning each node's assigned community representative.
func (g *Graph) Louvain(ctx context.Context, maxIterations int) (map[NodeID]NodeID, error) {
	var out map[NodeID]NodeID
	err := timed("louvain", func() error {
		var err error
		out, err = algo.Louvain(ctx, g.engine, maxIterations)
		return err
	})
	return out, err
}

// ConnectedComponents partitions nodes into undirected connected
// components.
func (g *Graph) ConnectedComponents(ctx context.Context) ([][]NodeID, error) {
	var out [][]NodeID
	err := timed("connected_components", func() error {
		var err error
		out, err = algo.ConnectedComponents(ctx, g.engine)
		return err
	})
	return out, err
}

// SCC returns strongly connected components via Kosaraju's two-pass
// algorithm.
func (g *Graph) SCC(ctx context.Context) ([][]NodeID, error) {
	var out [][]NodeID
	err := timed("scc", func() error {
		var err error
		out, err = algo.SCC(ctx, g.engine)
		return err
	})
	return out, err
}

// KCore returns the node ids surviving k-core peeling at the given k.
func (g *Graph) KCore(ctx context.Context, k int) ([]NodeID, error) {
	var out []NodeID
	err := timed("kcore", func() error {
		var err error
		out, err = algo.KCore(ctx, g.engine, k)
		return err
	})
	return out, err
}

// TriangleCount counts triangles using u<v<w canonical ordering.
func (g *Graph) TriangleCount(ctx context.Context) (int64, error) {
	var out int64
	err := timed("triangle_count", func() error {
		var err error
		out, err = algo.TriangleCount(ctx, g.engine)
		return err
	})
	return out, err
}

// DegreeCentrality returns each node's degree centrality, normalized to
// [0,1].
func (g *Graph) DegreeCentrality(ctx context.Context) (map[NodeID]float64, error) {
	var out map[NodeID]float64
	err := timed("degree_centrality", func() error {
		var err error
		out, err = algo.DegreeCentrality(ctx, g.engine)
		return err
	})
	return out, err
}

// BetweennessCentrality returns each node's betweenness centrality,
// normalized to [0,1].
func (g *Graph) BetweennessCentrality(ctx context.Context) (map[NodeID]float64, error) {
	var out map[NodeID]float64
	err := timed("betweenness_centrality", func() error {
		var err error
		out, err = algo.BetweennessCentrality(ctx, g.engine)
		return err
	})
	return out, err
}
