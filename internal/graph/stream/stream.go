// Package stream implements the backpressured streaming layer: a
// bounded-channel producer/consumer pair delivering query results as
// batched StreamItem values, paced by a semaphore-bounded worker pool and
// a token-bucket admission limiter, plus cursor-based pagination layered
// on top. No hidden generators: an explicit producer goroutine and a
// bounded channel.
package stream

import (
	"context"
	"sync"

	"github.com/r3e-network/graphdb/infrastructure/ratelimit"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/pkg/metrics"
)

// ItemKind discriminates which field of StreamItem is populated.
type ItemKind int

const (
	ItemNode ItemKind = iota
	ItemRel
	ItemBatchEnd
)

// StreamItem is one element of a query stream: a node, a relationship,
// or an end-of-batch marker carrying the batch index and overall
// progress in [0,1].
type StreamItem struct {
	Kind     ItemKind
	Node     *model.Node
	Rel      *model.Relationship
	Batch    int
	Progress float64
}

// Config holds the backpressure knobs: channel buffer size, worker
// concurrency limit, batch size, and an optional admission rate limit
// (0 disables rate limiting).
type Config struct {
	ChannelBuffer    int
	ConcurrencyLimit int
	BatchSize        int
	RateLimitPerSec  float64
}

// DefaultConfig returns reasonable defaults for an embedded workload.
func DefaultConfig() Config {
	return Config{
		ChannelBuffer:    256,
		ConcurrencyLimit: 4,
		BatchSize:        100,
	}
}

// QueryStream delivers nodes (or relationships) from a producer function
// over a bounded channel. Producers block when the buffer is full
// (backpressure); consumers read until the channel closes.
type QueryStream struct {
	items   chan StreamItem
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	errOnce sync.Once
}

// NewNodeStream launches a producer goroutine delivering nodes in
// cfg.BatchSize-sized groups, each followed by an ItemBatchEnd marker
// carrying cumulative progress. The semaphore bounded by
// cfg.ConcurrencyLimit admits at most that many batches in flight at
// once; an optional rate.Limiter paces batch admission when
// cfg.RateLimitPerSec > 0.
func NewNodeStream(ctx context.Context, cfg Config, nodes []*model.Node) *QueryStream {
	ctx, cancel := context.WithCancel(ctx)
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = len(nodes)
		if cfg.BatchSize == 0 {
			cfg.BatchSize = 1
		}
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 1
	}

	qs := &QueryStream{
		items: make(chan StreamItem, cfg.ChannelBuffer),
		done:  make(chan struct{}),
	}
	qs.cancel = cancel

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimitPerSec > 0 {
		limiter = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: cfg.RateLimitPerSec, Burst: cfg.ConcurrencyLimit})
	}

	total := len(nodes)
	batches := chunkNodes(nodes, cfg.BatchSize)
	sem := make(chan struct{}, cfg.ConcurrencyLimit)

	go func() {
		defer close(qs.done)
		defer close(qs.items)

		delivered := 0
		for batchIdx, batch := range batches {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					qs.setErr(err)
					return
				}
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				qs.setErr(ctx.Err())
				return
			}

			for _, n := range batch {
				select {
				case qs.items <- StreamItem{Kind: ItemNode, Node: n}:
					delivered++
					metrics.RecordStreamItem("node")
				case <-ctx.Done():
					qs.setErr(ctx.Err())
					<-sem
					return
				}
			}

			progress := 1.0
			if total > 0 {
				progress = float64(delivered) / float64(total)
			}
			select {
			case qs.items <- StreamItem{Kind: ItemBatchEnd, Batch: batchIdx, Progress: progress}:
			case <-ctx.Done():
				qs.setErr(ctx.Err())
				<-sem
				return
			}
			<-sem
		}
	}()

	return qs
}

func (qs *QueryStream) setErr(err error) {
	qs.errOnce.Do(func() { qs.err = err })
}

// Items exposes the stream's channel for range-based consumption.
func (qs *QueryStream) Items() <-chan StreamItem { return qs.items }

// Close cancels the producer and waits for it to exit.
func (qs *QueryStream) Close() {
	qs.cancel()
	<-qs.done
}

// Err returns the error (if any) that stopped the stream early.
func (qs *QueryStream) Err() error { return qs.err }

func chunkNodes(nodes []*model.Node, size int) [][]*model.Node {
	if size <= 0 {
		size = 1
	}
	var out [][]*model.Node
	for i := 0; i < len(nodes); i += size {
		end := i + size
		if end > len(nodes) {
			end = len(nodes)
		}
		out = append(out, nodes[i:end])
	}
	return out
}

// BackpressureHandler wraps a bounded channel send with a non-blocking
// TryOffer (returns graphcode.Backpressure when full) alongside a
// blocking Offer, so callers can choose whether to apply backpressure or
// fail fast.
type BackpressureHandler struct {
	name string
	ch   chan StreamItem
}

// NewBackpressureHandler wraps ch, named for error reporting.
func NewBackpressureHandler(name string, ch chan StreamItem) *BackpressureHandler {
	return &BackpressureHandler{name: name, ch: ch}
}

// Offer blocks until ch accepts item or ctx is cancelled.
func (h *BackpressureHandler) Offer(ctx context.Context, item StreamItem) error {
	select {
	case h.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryOffer attempts a non-blocking send, returning graphcode.Backpressure
// if the buffer is full.
func (h *BackpressureHandler) TryOffer(item StreamItem) error {
	select {
	case h.ch <- item:
		return nil
	default:
		metrics.RecordStreamBackpressure(h.name)
		return graphcode.Backpressure(h.name)
	}
}
