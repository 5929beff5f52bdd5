package stream

import (
	"context"
	"sync"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

// BatchProcessor applies a handler function to fixed-size batches of
// nodes with bounded concurrency. A failed batch does not stop the
// remaining batches; Run keeps only the first error and returns it.
type BatchProcessor struct {
	batchSize  int
	concurrent int
}

// NewBatchProcessor returns a processor chunking work into batchSize
// groups, running at most concurrent batches at a time.
func NewBatchProcessor(batchSize, concurrent int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 1
	}
	if concurrent <= 0 {
		concurrent = 1
	}
	return &BatchProcessor{batchSize: batchSize, concurrent: concurrent}
}

// Run applies handler to every batch of nodes, bounded by the
// processor's concurrency limit. Returns the first error encountered, if
// any, after every in-flight batch has finished.
func (p *BatchProcessor) Run(ctx context.Context, nodes []*model.Node, handler func(ctx context.Context, batch []*model.Node) error) error {
	batches := chunkNodes(nodes, p.batchSize)
	sem := make(chan struct{}, p.concurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, batch := range batches {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func(b []*model.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := handler(ctx, b); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(batch)
	}
	wg.Wait()
	return firstErr
}
