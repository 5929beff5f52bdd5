package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// TriangleCount counts undirected triangles using the canonical u<v<w
// ordering, so each triangle is counted exactly once instead of the six
// times a naive per-node enumeration would produce.
func TriangleCount(ctx context.Context, eng engine.Engine) (int64, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return 0, err
	}

	adj := make(map[model.NodeID]map[model.NodeID]struct{}, len(ids))
	for _, id := range ids {
		nbrs, err := neighbors(ctx, eng, id, true)
		if err != nil {
			return 0, err
		}
		set := make(map[model.NodeID]struct{}, len(nbrs))
		for _, nb := range nbrs {
			set[nb] = struct{}{}
		}
		adj[id] = set
	}

	var count int64
	for _, u := range ids {
		for v := range adj[u] {
			if v <= u {
				continue
			}
			for w := range adj[v] {
				if w <= v {
					continue
				}
				if _, ok := adj[u][w]; ok {
					count++
				}
			}
		}
	}
	return count, nil
}
