package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// KCore computes the k-core decomposition by repeated peeling: nodes
// with undirected degree below k are removed, along with the edges they
// carried, until no more removals are possible; the surviving set is the
// k-core. Returns the ids that remain in the k-core for the given k.
func KCore(ctx context.Context, eng engine.Engine, k int) ([]model.NodeID, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}

	degree := make(map[model.NodeID]int, len(ids))
	adj := make(map[model.NodeID]map[model.NodeID]struct{}, len(ids))
	for _, id := range ids {
		nbrs, err := neighbors(ctx, eng, id, true)
		if err != nil {
			return nil, err
		}
		set := make(map[model.NodeID]struct{}, len(nbrs))
		for _, nb := range nbrs {
			set[nb] = struct{}{}
		}
		adj[id] = set
		degree[id] = len(set)
	}

	removed := make(map[model.NodeID]struct{})
	changed := true
	for changed {
		changed = false
		for _, id := range ids {
			if _, gone := removed[id]; gone {
				continue
			}
			if degree[id] < k {
				removed[id] = struct{}{}
				changed = true
				for nb := range adj[id] {
					if _, gone := removed[nb]; !gone {
						degree[nb]--
					}
				}
			}
		}
	}

	var core []model.NodeID
	for _, id := range ids {
		if _, gone := removed[id]; !gone {
			core = append(core, id)
		}
	}
	return core, nil
}
