package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// DegreeCentrality returns each node's undirected degree normalized to
// [0,1] by dividing by (n-1), the maximum possible degree in a simple
// graph of n nodes.
func DegreeCentrality(ctx context.Context, eng engine.Engine) (map[model.NodeID]float64, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}
	n := len(ids)
	out := make(map[model.NodeID]float64, n)
	if n <= 1 {
		for _, id := range ids {
			out[id] = 0
		}
		return out, nil
	}
	for _, id := range ids {
		nbrs, err := neighbors(ctx, eng, id, true)
		if err != nil {
			return nil, err
		}
		out[id] = float64(len(nbrs)) / float64(n-1)
	}
	return out, nil
}

// BetweennessCentrality computes Brandes' algorithm over unweighted
// edges: for every source, a single-source-shortest-path BFS pass
// accumulates dependency scores back-propagated in reverse BFS-finish
// order. Output is normalized to [0,1] by dividing by the number of
// ordered pairs excluding the node itself, (n-1)(n-2) for directed
// graphs.
func BetweennessCentrality(ctx context.Context, eng engine.Engine) (map[model.NodeID]float64, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}
	n := len(ids)
	centrality := make(map[model.NodeID]float64, n)
	for _, id := range ids {
		centrality[id] = 0
	}
	if n <= 2 {
		return centrality, nil
	}

	for _, s := range ids {
		stack := []model.NodeID{}
		pred := make(map[model.NodeID][]model.NodeID, n)
		sigma := make(map[model.NodeID]float64, n)
		dist := make(map[model.NodeID]int, n)
		for _, id := range ids {
			sigma[id] = 0
			dist[id] = -1
		}
		sigma[s] = 1
		dist[s] = 0

		queue := []model.NodeID{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			nbrs, err := neighbors(ctx, eng, v, false)
			if err != nil {
				return nil, err
			}
			for _, w := range nbrs {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make(map[model.NodeID]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				if sigma[w] > 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	norm := float64((n - 1) * (n - 2))
	if norm > 0 {
		for id := range centrality {
			centrality[id] /= norm
		}
	}
	return centrality, nil
}
