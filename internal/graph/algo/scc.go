package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// SCC computes strongly connected components via Kosaraju's two-pass
// algorithm: a DFS finish-order pass over the forward graph, followed by
// a DFS pass over the reverse graph in decreasing finish order. Each
// returned slice is one component; for any pair of nodes in the same
// component, a path exists in both directions, and for nodes in
// different components at least one direction has no path.
func SCC(ctx context.Context, eng engine.Engine) ([][]model.NodeID, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}

	visited := make(map[model.NodeID]struct{}, len(ids))
	var order []model.NodeID

	var visit func(model.NodeID) error
	visit = func(n model.NodeID) error {
		stack := []struct {
			node     model.NodeID
			childIdx int
			nbrs     []model.NodeID
		}{{node: n}}
		visited[n] = struct{}{}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.nbrs == nil {
				nbrs, err := neighbors(ctx, eng, top.node, false)
				if err != nil {
					return err
				}
				top.nbrs = nbrs
			}
			if top.childIdx < len(top.nbrs) {
				nb := top.nbrs[top.childIdx]
				top.childIdx++
				if _, ok := visited[nb]; !ok {
					visited[nb] = struct{}{}
					stack = append(stack, struct {
						node     model.NodeID
						childIdx int
						nbrs     []model.NodeID
					}{node: nb})
				}
				continue
			}
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
		return nil
	}

	for _, id := range ids {
		if _, ok := visited[id]; !ok {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}

	// Reverse-graph adjacency, built once from the forward edges.
	reverse := make(map[model.NodeID][]model.NodeID, len(ids))
	for _, id := range ids {
		it, err := eng.OutgoingRels(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range engine.DrainRels(it) {
			reverse[r.End] = append(reverse[r.End], r.Start)
		}
	}

	visited2 := make(map[model.NodeID]struct{}, len(ids))
	var components [][]model.NodeID
	for i := len(order) - 1; i >= 0; i-- {
		start := order[i]
		if _, ok := visited2[start]; ok {
			continue
		}
		var comp []model.NodeID
		stack := []model.NodeID{start}
		visited2[start] = struct{}{}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, nb := range reverse[cur] {
				if _, ok := visited2[nb]; !ok {
					visited2[nb] = struct{}{}
					stack = append(stack, nb)
				}
			}
		}
		components = append(components, comp)
	}
	return components, nil
}
