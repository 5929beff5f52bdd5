package graphdb

import (
	"context"

	"github.com/r3e-network/graphdb/internal/graph/stream"
	"github.com/r3e-network/graphdb/pkg/config"
)

// QueryStream, StreamQueryBuilder, BatchProcessor, BackpressureHandler,
// Page, and Cursor are re-exported so callers don't need to import
// internal/graph/stream directly.
type (
	QueryStream        = stream.QueryStream
	StreamQueryBuilder  = stream.StreamQueryBuilder
	BatchProcessor      = stream.BatchProcessor
	BackpressureHandler = stream.BackpressureHandler
	StreamItem          = stream.StreamItem
	Page                = stream.Page
	Cursor              = stream.Cursor
)

// streamConfigFrom adapts pkg/config's flat StreamConfig into
// stream.Config.
func streamConfigFrom(c config.StreamConfig) stream.Config {
	cfg := stream.DefaultConfig()
	if c.ChannelBuffer > 0 {
		cfg.ChannelBuffer = c.ChannelBuffer
	}
	if c.ConcurrencyLimit > 0 {
		cfg.ConcurrencyLimit = c.ConcurrencyLimit
	}
	if c.BatchSize > 0 {
		cfg.BatchSize = c.BatchSize
	}
	cfg.RateLimitPerSec = c.RateLimitPerSec
	return cfg
}

// StreamConfig returns this graph's streaming configuration, adapted
// from pkg/config.
func (g *Graph) StreamConfig() stream.Config {
	return streamConfigFrom(g.cfg.Stream)
}

// StreamNodes delivers nodes as a backpressured stream using the
// graph's configured streaming knobs.
func (g *Graph) StreamNodes(ctx context.Context, nodes []*Node) *QueryStream {
	return stream.NewNodeStream(ctx, g.StreamConfig(), nodes)
}

// NewStreamQueryBuilder adapts a fluent query.Builder's terminal node
// collection into a paced stream.
func (g *Graph) NewStreamQueryBuilder(ctx context.Context) *StreamQueryBuilder {
	return stream.NewStreamQueryBuilder(g.NewQueryBuilder(ctx), g.StreamConfig())
}

// NewBatchProcessor returns a BatchProcessor using the graph's
// configured batch size and concurrency limit.
func (g *Graph) NewBatchProcessor() *BatchProcessor {
	cfg := g.StreamConfig()
	return stream.NewBatchProcessor(cfg.BatchSize, cfg.ConcurrencyLimit)
}

// Paginate slices nodes into the requested (page, pageSize) page.
func Paginate(nodes []*Node, page, pageSize int) Page {
	return stream.Paginate(nodes, page, pageSize)
}

// NewCursor returns an opaque cursor over nodes for successive
// next-page calls.
func NewCursor(nodes []*Node, pageSize int) *Cursor {
	return stream.NewCursor(nodes, pageSize)
}
