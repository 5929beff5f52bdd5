package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/stream"
)

func makeNodes(n int) []*model.Node {
	out := make([]*model.Node, n)
	for i := range out {
		out[i] = &model.Node{ID: model.NodeID(i + 1)}
	}
	return out
}

func TestNodeStreamDeliversEveryNodeAndBatchEnds(t *testing.T) {
	ctx := context.Background()
	cfg := stream.Config{ChannelBuffer: 4, ConcurrencyLimit: 2, BatchSize: 3}
	nodes := makeNodes(10)

	qs := stream.NewNodeStream(ctx, cfg, nodes)
	defer qs.Close()

	var seenNodes int
	var seenBatchEnds int
	var lastProgress float64
	for item := range qs.Items() {
		switch item.Kind {
		case stream.ItemNode:
			seenNodes++
		case stream.ItemBatchEnd:
			seenBatchEnds++
			lastProgress = item.Progress
		}
	}
	require.NoError(t, qs.Err())
	require.Equal(t, 10, seenNodes)
	require.Equal(t, 4, seenBatchEnds) // ceil(10/3)
	require.InDelta(t, 1.0, lastProgress, 1e-9)
}

func TestNodeStreamCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := stream.Config{ChannelBuffer: 1, ConcurrencyLimit: 1, BatchSize: 1}
	nodes := makeNodes(1000)

	qs := stream.NewNodeStream(ctx, cfg, nodes)
	cancel()
	// Drain until closed; cancellation should stop delivery well before
	// all 1000 nodes are produced.
	var count int
	for range qs.Items() {
		count++
	}
	require.Less(t, count, 1000)
}

func TestPaginate(t *testing.T) {
	nodes := makeNodes(10)
	p := stream.Paginate(nodes, 0, 4)
	require.Len(t, p.Nodes, 4)
	require.True(t, p.HasMore)

	p2 := stream.Paginate(nodes, 2, 4)
	require.Len(t, p2.Nodes, 2)
	require.False(t, p2.HasMore)
}

func TestCursorWalksAllPages(t *testing.T) {
	nodes := makeNodes(9)
	cur := stream.NewCursor(nodes, 4)

	var total int
	for cur.HasMore() {
		page := cur.NextPage()
		total += len(page.Nodes)
		require.Equal(t, cur.Token(), page.Cursor)
	}
	require.Equal(t, 9, total)
}

func TestBatchProcessorRunsAllBatches(t *testing.T) {
	ctx := context.Background()
	nodes := makeNodes(20)
	bp := stream.NewBatchProcessor(5, 3)

	var mu = make(chan int, 20)
	err := bp.Run(ctx, nodes, func(ctx context.Context, batch []*model.Node) error {
		mu <- len(batch)
		return nil
	})
	require.NoError(t, err)
	close(mu)
	var total int
	for n := range mu {
		total += n
	}
	require.Equal(t, 20, total)
}

func TestBackpressureHandlerTryOfferFullBuffer(t *testing.T) {
	ch := make(chan stream.StreamItem, 1)
	h := stream.NewBackpressureHandler("test", ch)
	require.NoError(t, h.TryOffer(stream.StreamItem{Kind: stream.ItemNode}))
	err := h.TryOffer(stream.StreamItem{Kind: stream.ItemNode})
	require.Error(t, err)
}

func TestBackpressureHandlerOfferBlocksUntilCancelled(t *testing.T) {
	ch := make(chan stream.StreamItem) // unbuffered
	h := stream.NewBackpressureHandler("test", ch)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Offer(ctx, stream.StreamItem{Kind: stream.ItemNode})
	require.Error(t, err)
}
