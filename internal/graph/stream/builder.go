package stream

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/query"
)

// StreamQueryBuilder adapts a query.Builder's terminal CollectNodes
// result into a backpressured QueryStream. CollectNodes still resolves
// the whole working set into one in-memory slice up front; only the
// delivery of those nodes to the consumer is paced.
type StreamQueryBuilder struct {
	qb  *query.Builder
	cfg Config
}

// NewStreamQueryBuilder wraps qb with the given streaming config.
func NewStreamQueryBuilder(qb *query.Builder, cfg Config) *StreamQueryBuilder {
	return &StreamQueryBuilder{qb: qb, cfg: cfg}
}

// Stream terminates the wrapped builder and streams its resulting nodes.
func (s *StreamQueryBuilder) Stream(ctx context.Context) (*QueryStream, error) {
	nodes, err := s.qb.CollectNodes()
	if err != nil {
		return nil, err
	}
	return NewNodeStream(ctx, s.cfg, nodes), nil
}
