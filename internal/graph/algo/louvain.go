package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// Louvain runs a simplified, greedy single-level variant of Louvain
// community detection: every node starts in its
// own community, then repeatedly moves to whichever neighboring
// community yields the largest increase in modularity, for up to
// maxIterations full passes over the node set or until no move improves
// modularity (convergence). Returns a map from NodeID to its final
// community id (the lowest node id in that community).
func Louvain(ctx context.Context, eng engine.Engine, maxIterations int) (map[model.NodeID]model.NodeID, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}

	adj := make(map[model.NodeID]map[model.NodeID]int, len(ids))
	var totalDegree float64
	for _, id := range ids {
		nbrs, err := neighbors(ctx, eng, id, true)
		if err != nil {
			return nil, err
		}
		weights := make(map[model.NodeID]int, len(nbrs))
		for _, nb := range nbrs {
			weights[nb]++
		}
		adj[id] = weights
		totalDegree += float64(len(nbrs))
	}

	community := make(map[model.NodeID]model.NodeID, len(ids))
	degree := make(map[model.NodeID]int, len(ids))
	for _, id := range ids {
		community[id] = id
		degree[id] = len(adj[id])
	}

	commDegree := make(map[model.NodeID]float64, len(ids))
	for _, id := range ids {
		commDegree[community[id]] += float64(degree[id])
	}

	m2 := totalDegree // 2m, since each undirected edge was counted from both endpoints
	if m2 == 0 {
		return community, nil
	}

	for iter := 0; iter < maxIterations; iter++ {
		improved := false
		for _, id := range ids {
			currentComm := community[id]
			commDegree[currentComm] -= float64(degree[id])

			commWeight := make(map[model.NodeID]int)
			for nb, w := range adj[id] {
				if nb == id {
					continue
				}
				commWeight[community[nb]] += w
			}

			bestComm := currentComm
			bestDelta := modularityDelta(commWeight[currentComm], commDegree[currentComm], float64(degree[id]), m2)
			for comm, w := range commWeight {
				delta := modularityDelta(w, commDegree[comm], float64(degree[id]), m2)
				if delta > bestDelta || (delta == bestDelta && comm < bestComm) {
					bestDelta = delta
					bestComm = comm
				}
			}

			community[id] = bestComm
			commDegree[bestComm] += float64(degree[id])
			if bestComm != currentComm {
				improved = true
			}
		}
		if !improved {
			break
		}
	}

	// Canonicalize community ids to the lowest member id, for
	// deterministic output independent of iteration order.
	canon := make(map[model.NodeID]model.NodeID)
	for _, id := range ids {
		c := community[id]
		if cur, ok := canon[c]; !ok || id < cur {
			canon[c] = id
		}
	}
	out := make(map[model.NodeID]model.NodeID, len(ids))
	for _, id := range ids {
		out[id] = canon[community[id]]
	}
	return out, nil
}

// modularityDelta computes the (unnormalized) change in modularity from
// moving a node of the given degree into a community with kIn edges to
// it and commDegree total internal degree, over a graph with m2 = 2m
// total degree.
func modularityDelta(kIn int, commDegree, nodeDegree, m2 float64) float64 {
	return float64(kIn) - commDegree*nodeDegree/m2
}
