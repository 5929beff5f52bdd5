// Package algo implements the graph algorithms library: traversal,
// shortest paths, centralities, community detection, and structural
// analyses, each as an ordinary iterative function over an explicit work
// queue (BinaryHeap for Dijkstra/A*, a FIFO for BFS, an explicit stack for
// DFS) over the storage engine's adjacency surface directly — no hidden
// generators.
package algo

import (
	"context"
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// neighbors returns the outgoing (and, if undirected, incoming) neighbor
// ids of n, deduplicated and in ascending id order for deterministic
// iteration across runs regardless of map ordering.
func neighbors(ctx context.Context, eng engine.Engine, n model.NodeID, undirected bool) ([]model.NodeID, error) {
	seen := make(map[model.NodeID]struct{})
	var out []model.NodeID
	add := func(id model.NodeID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	it, err := eng.OutgoingRels(ctx, n)
	if err != nil {
		return nil, err
	}
	for _, r := range engine.DrainRels(it) {
		add(r.End)
	}
	if undirected {
		it, err := eng.IncomingRels(ctx, n)
		if err != nil {
			return nil, err
		}
		for _, r := range engine.DrainRels(it) {
			add(r.Start)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func allNodeIDs(ctx context.Context, eng engine.Engine) ([]model.NodeID, error) {
	it, err := eng.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	nodes := engine.Drain(it)
	ids := make([]model.NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// BFS walks the graph breadth-first from start along outgoing edges
// (both directions if undirected), visiting each node once, and returns
// the ids in visitation order.
func BFS(ctx context.Context, eng engine.Engine, start model.NodeID, undirected bool) ([]model.NodeID, error) {
	visited := map[model.NodeID]struct{}{start: {}}
	queue := []model.NodeID{start}
	var order []model.NodeID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		nbrs, err := neighbors(ctx, eng, cur, undirected)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbrs {
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = struct{}{}
			queue = append(queue, nb)
		}
	}
	return order, nil
}

// DFS walks the graph depth-first from start using an explicit stack
// (no recursion), visiting each node once, and returns the ids in
// visitation order.
func DFS(ctx context.Context, eng engine.Engine, start model.NodeID, undirected bool) ([]model.NodeID, error) {
	visited := map[model.NodeID]struct{}{}
	stack := []model.NodeID{start}
	var order []model.NodeID
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		order = append(order, cur)
		nbrs, err := neighbors(ctx, eng, cur, undirected)
		if err != nil {
			return nil, err
		}
		// Push in reverse so the lowest-id neighbor is explored first,
		// matching BFS's deterministic ascending-id tie-break.
		for i := len(nbrs) - 1; i >= 0; i-- {
			if _, ok := visited[nbrs[i]]; !ok {
				stack = append(stack, nbrs[i])
			}
		}
	}
	return order, nil
}

// HasPath reports whether end is reachable from start along outgoing
// edges.
func HasPath(ctx context.Context, eng engine.Engine, start, end model.NodeID) (bool, error) {
	if start == end {
		return true, nil
	}
	order, err := BFS(ctx, eng, start, false)
	if err != nil {
		return false, err
	}
	for _, id := range order {
		if id == end {
			return true, nil
		}
	}
	return false, nil
}

// ConnectedComponents partitions the node set into undirected connected
// components. Every two nodes in the same returned slice are connected
// by some sequence of edges; nodes in different slices are not.
func ConnectedComponents(ctx context.Context, eng engine.Engine) ([][]model.NodeID, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}
	visited := make(map[model.NodeID]struct{}, len(ids))
	var components [][]model.NodeID
	for _, id := range ids {
		if _, ok := visited[id]; ok {
			continue
		}
		comp, err := BFS(ctx, eng, id, true)
		if err != nil {
			return nil, err
		}
		for _, n := range comp {
			visited[n] = struct{}{}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		components = append(components, comp)
	}
	return components, nil
}
