package algo

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// DefaultDamping is PageRank's conventional damping factor.
const DefaultDamping = 0.85

// PageRank computes PageRank scores over iterations fixed-point
// iterations, redistributing a dangling node's (zero out-degree) rank
// uniformly across every node on each pass. Output always sums to 1.0 (within
// floating-point error) when the graph has at least one node.
func PageRank(ctx context.Context, eng engine.Engine, damping float64, iterations int) (map[model.NodeID]float64, error) {
	ids, err := allNodeIDs(ctx, eng)
	if err != nil {
		return nil, err
	}
	n := len(ids)
	if n == 0 {
		return map[model.NodeID]float64{}, nil
	}

	outDegree := make(map[model.NodeID]int, n)
	incoming := make(map[model.NodeID][]model.NodeID, n)
	for _, id := range ids {
		it, err := eng.OutgoingRels(ctx, id)
		if err != nil {
			return nil, err
		}
		rels := engine.DrainRels(it)
		outDegree[id] = len(rels)
		for _, r := range rels {
			incoming[r.End] = append(incoming[r.End], id)
		}
	}

	initial := 1.0 / float64(n)
	ranks := make(map[model.NodeID]float64, n)
	for _, id := range ids {
		ranks[id] = initial
	}

	for iter := 0; iter < iterations; iter++ {
		var danglingSum float64
		for _, id := range ids {
			if outDegree[id] == 0 {
				danglingSum += ranks[id]
			}
		}

		next := make(map[model.NodeID]float64, n)
		base := (1-damping)/float64(n) + damping*danglingSum/float64(n)
		for _, id := range ids {
			rank := base
			for _, from := range incoming[id] {
				if d := outDegree[from]; d > 0 {
					rank += damping * ranks[from] / float64(d)
				}
			}
			next[id] = rank
		}
		ranks = next
	}

	var sum float64
	for _, r := range ranks {
		sum += r
	}
	if sum > 0 {
		for id := range ranks {
			ranks[id] /= sum
		}
	}
	return ranks, nil
}
