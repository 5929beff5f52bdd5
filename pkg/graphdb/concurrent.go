package graphdb

import (
	"context"
	"sync"
)

// ConcurrentGraph wraps a Graph with an external reader-writer lock,
// giving multiple concurrent readers and exclusive writers. Every
// accessor returns owned copies (Node/Relationship.Clone) so callers
// never observe a mutation racing with their own read. Callers that
// wrap a Graph in a ConcurrentGraph must use only the wrapper from then
// on; mixing it with the underlying Graph's unguarded methods on the
// same instance is not supported.
type ConcurrentGraph struct {
	mu sync.RWMutex
	g  *Graph
}

// NewConcurrentGraph wraps g.
func NewConcurrentGraph(g *Graph) *ConcurrentGraph {
	return &ConcurrentGraph{g: g}
}

// CreateNode takes the write lock and delegates to Graph.CreateNode.
func (c *ConcurrentGraph) CreateNode(ctx context.Context, labels []string, props PropMap) (NodeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.CreateNode(ctx, labels, props)
}

// CreateRel takes the write lock and delegates to Graph.CreateRel.
func (c *ConcurrentGraph) CreateRel(ctx context.Context, start, end NodeID, relType string, props PropMap) (RelID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.CreateRel(ctx, start, end, relType, props)
}

// DeleteNode takes the write lock and delegates to Graph.DeleteNode.
func (c *ConcurrentGraph) DeleteNode(ctx context.Context, id NodeID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.DeleteNode(ctx, id)
}

// DeleteRel takes the write lock and delegates to Graph.DeleteRel.
func (c *ConcurrentGraph) DeleteRel(ctx context.Context, id RelID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.DeleteRel(ctx, id)
}

// GetNode takes the read lock and returns an owned copy of the node.
func (c *ConcurrentGraph) GetNode(ctx context.Context, id NodeID) (*Node, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok, err := c.g.GetNode(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return n.Clone(), true, nil
}

// GetRel takes the read lock and returns an owned copy of the
// relationship.
func (c *ConcurrentGraph) GetRel(ctx context.Context, id RelID) (*Relationship, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok, err := c.g.GetRel(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return r.Clone(), true, nil
}

// NeighborsOut takes the read lock and returns owned copies.
func (c *ConcurrentGraph) NeighborsOut(ctx context.Context, id NodeID) ([]*Relationship, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rels, err := c.g.NeighborsOut(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneRels(rels), nil
}

// NeighborsIn takes the read lock and returns owned copies.
func (c *ConcurrentGraph) NeighborsIn(ctx context.Context, id NodeID) ([]*Relationship, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rels, err := c.g.NeighborsIn(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneRels(rels), nil
}

// AllNodes takes the read lock and returns owned copies of every node.
func (c *ConcurrentGraph) AllNodes(ctx context.Context) ([]*Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nodes, err := c.g.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out, nil
}

// Flush takes the write lock and delegates to Graph.Flush.
func (c *ConcurrentGraph) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.Flush(ctx)
}

// OutDegree returns the number of outgoing relationships id has.
func (c *ConcurrentGraph) OutDegree(ctx context.Context, id NodeID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rels, err := c.g.NeighborsOut(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(rels), nil
}

// InDegree returns the number of incoming relationships id has.
func (c *ConcurrentGraph) InDegree(ctx context.Context, id NodeID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rels, err := c.g.NeighborsIn(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(rels), nil
}

// Degree returns the sum of id's in- and out-degree.
func (c *ConcurrentGraph) Degree(ctx context.Context, id NodeID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, err := c.g.NeighborsOut(ctx, id)
	if err != nil {
		return 0, err
	}
	in, err := c.g.NeighborsIn(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(out) + len(in), nil
}

// NodeCount returns the total number of nodes in the engine.
func (c *ConcurrentGraph) NodeCount(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, err := c.g.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.NodeCount, nil
}

// RelCount returns the total number of relationships in the engine.
func (c *ConcurrentGraph) RelCount(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, err := c.g.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.RelCount, nil
}

// Unwrap returns the underlying Graph for callers that need the wider
// surface (Cypher, algorithms, streaming) not mirrored on the wrapper.
// Callers doing so take on responsibility for their own synchronization.
func (c *ConcurrentGraph) Unwrap() *Graph { return c.g }

func cloneRels(rels []*Relationship) []*Relationship {
	out := make([]*Relationship, len(rels))
	for i, r := range rels {
		out[i] = r.Clone()
	}
	return out
}
