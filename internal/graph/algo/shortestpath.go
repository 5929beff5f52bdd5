package algo

import (
	"container/heap"
	"context"
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/model"
)

// pqItem is one entry in a Dijkstra/A* priority queue.
type pqItem struct {
	node     model.NodeID
	priority float64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	// Deterministic tie-break by node id, so paths of equal length are
	// enumerated in a stable order.
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Dijkstra runs uniform-edge-weight Dijkstra from start, returning the
// shortest-hop-count distance to every reachable node and the
// predecessor used to reach it (for path reconstruction).
func Dijkstra(ctx context.Context, eng engine.Engine, start model.NodeID) (dist map[model.NodeID]float64, prev map[model.NodeID]model.NodeID, err error) {
	return dijkstraWeighted(ctx, eng, start, func(model.NodeID, model.NodeID) float64 { return 1 })
}

func dijkstraWeighted(ctx context.Context, eng engine.Engine, start model.NodeID, cost func(a, b model.NodeID) float64) (map[model.NodeID]float64, map[model.NodeID]model.NodeID, error) {
	dist := map[model.NodeID]float64{start: 0}
	prev := map[model.NodeID]model.NodeID{}
	visited := map[model.NodeID]struct{}{}

	pq := &priorityQueue{{node: start, priority: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if _, done := visited[cur.node]; done {
			continue
		}
		visited[cur.node] = struct{}{}

		nbrs, err := neighbors(ctx, eng, cur.node, false)
		if err != nil {
			return nil, nil, err
		}
		for _, nb := range nbrs {
			alt := dist[cur.node] + cost(cur.node, nb)
			if d, ok := dist[nb]; !ok || alt < d {
				dist[nb] = alt
				prev[nb] = cur.node
				heap.Push(pq, &pqItem{node: nb, priority: alt})
			}
		}
	}
	return dist, prev, nil
}

// ShortestPath reconstructs the single shortest path from start to end
// using Dijkstra, returning (nil, false) if end is unreachable.
func ShortestPath(ctx context.Context, eng engine.Engine, start, end model.NodeID) ([]model.NodeID, bool, error) {
	dist, prev, err := Dijkstra(ctx, eng, start)
	if err != nil {
		return nil, false, err
	}
	if _, ok := dist[end]; !ok && start != end {
		return nil, false, nil
	}
	return reconstructPath(prev, start, end), true, nil
}

func reconstructPath(prev map[model.NodeID]model.NodeID, start, end model.NodeID) []model.NodeID {
	path := []model.NodeID{end}
	cur := end
	for cur != start {
		p, ok := prev[cur]
		if !ok {
			break
		}
		path = append(path, p)
		cur = p
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// AllShortestPaths returns every path of minimum length from start to
// end, via BFS-layered distance + parent-set backtracking in two
// passes: a first BFS pass records, for every
// node, its distance from start and every predecessor that achieves
// that distance; a second pass walks back from end through every
// recorded predecessor to enumerate all minimum-length paths.
func AllShortestPaths(ctx context.Context, eng engine.Engine, start, end model.NodeID) ([][]model.NodeID, error) {
	if start == end {
		return [][]model.NodeID{{start}}, nil
	}

	dist := map[model.NodeID]int{start: 0}
	parents := map[model.NodeID][]model.NodeID{}
	queue := []model.NodeID{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curDist := dist[cur]

		if endDist, ok := dist[end]; ok && curDist > endDist {
			continue
		}

		nbrs, err := neighbors(ctx, eng, cur, false)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbrs {
			if d, ok := dist[nb]; !ok {
				dist[nb] = curDist + 1
				parents[nb] = append(parents[nb], cur)
				queue = append(queue, nb)
			} else if d == curDist+1 {
				parents[nb] = append(parents[nb], cur)
			}
		}
	}

	if _, ok := dist[end]; !ok {
		return nil, nil
	}

	var paths [][]model.NodeID
	var cur []model.NodeID
	var build func(node model.NodeID)
	build = func(node model.NodeID) {
		cur = append(cur, node)
		if node == start {
			path := make([]model.NodeID, len(cur))
			for i, n := range cur {
				path[len(cur)-1-i] = n
			}
			paths = append(paths, path)
		} else {
			ps := append([]model.NodeID{}, parents[node]...)
			sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
			for _, p := range ps {
				build(p)
			}
		}
		cur = cur[:len(cur)-1]
	}
	build(end)
	return paths, nil
}

// Heuristic estimates remaining cost from a node to the goal. Must be
// admissible (never overestimate) for A* to return an optimal path.
type Heuristic func(node model.NodeID) float64

// CostFunc returns the edge weight between two adjacent nodes.
type CostFunc func(a, b model.NodeID) float64

// AStar runs heuristic-guided search from start to end. The caller
// supplies the heuristic and edge-cost function; an inadmissible
// heuristic may return a suboptimal path without erroring — admissibility
// is a caller obligation, not something this function can enforce.
func AStar(ctx context.Context, eng engine.Engine, start, end model.NodeID, h Heuristic, cost CostFunc) ([]model.NodeID, bool, error) {
	gScore := map[model.NodeID]float64{start: 0}
	prev := map[model.NodeID]model.NodeID{}
	visited := map[model.NodeID]struct{}{}

	pq := &priorityQueue{{node: start, priority: h(start)}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if cur.node == end {
			return reconstructPath(prev, start, end), true, nil
		}
		if _, done := visited[cur.node]; done {
			continue
		}
		visited[cur.node] = struct{}{}

		nbrs, err := neighbors(ctx, eng, cur.node, false)
		if err != nil {
			return nil, false, err
		}
		for _, nb := range nbrs {
			tentative := gScore[cur.node] + cost(cur.node, nb)
			if g, ok := gScore[nb]; !ok || tentative < g {
				gScore[nb] = tentative
				prev[nb] = cur.node
				heap.Push(pq, &pqItem{node: nb, priority: tentative + h(nb)})
			}
		}
	}
	return nil, false, nil
}
