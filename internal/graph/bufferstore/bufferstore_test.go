package bufferstore

import (
	"context"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/memstore"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func newTestStore(t *testing.T) (*Store, engine.Engine) {
	t.Helper()
	under := memstore.New()
	s, err := New(context.Background(), under, Config{FlushThreshold: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, under
}

func TestCreateNodeIsImmediatelyReadableBeforeFlush(t *testing.T) {
	ctx := context.Background()
	s, under := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, found, err := s.GetNode(ctx, id)
	if err != nil || !found {
		t.Fatalf("expected buffered read to find node before flush: found=%v err=%v", found, err)
	}
	if n.Props["name"] != value.Text("Alice") {
		t.Fatalf("unexpected props: %#v", n.Props)
	}

	if _, found, _ := under.GetNode(ctx, id); found {
		t.Fatalf("expected node to not yet be materialized in the underlying engine")
	}
}

func TestFlushMaterializesToUnderlying(t *testing.T) {
	ctx := context.Background()
	s, under := newTestStore(t)

	id, _ := s.CreateNode(ctx, []string{"User"}, nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if _, found, err := under.GetNode(ctx, id); err != nil || !found {
		t.Fatalf("expected node to be materialized after flush: found=%v err=%v", found, err)
	}
}

func TestDeleteBeforeFlushNeverReachesUnderlying(t *testing.T) {
	ctx := context.Background()
	s, under := newTestStore(t)

	id, _ := s.CreateNode(ctx, []string{"User"}, nil)
	if existed, err := s.DeleteNode(ctx, id); err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if _, found, _ := under.GetNode(ctx, id); found {
		t.Fatalf("expected a created-then-deleted node to never reach the underlying engine")
	}
}

func TestFlushThresholdTriggersAutomatically(t *testing.T) {
	ctx := context.Background()
	under := memstore.New()
	s, err := New(ctx, under, Config{FlushThreshold: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	s.CreateNode(ctx, []string{"User"}, nil)
	id2, _ := s.CreateNode(ctx, []string{"User"}, nil)

	if _, found, _ := under.GetNode(ctx, id2); !found {
		t.Fatalf("expected threshold-triggered flush to materialize pending nodes")
	}
}

func TestOutgoingRelsMergesBufferedAndUnderlying(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	alice, _ := s.CreateNode(ctx, []string{"User"}, nil)
	bob, _ := s.CreateNode(ctx, []string{"User"}, nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if _, err := s.CreateRel(ctx, alice, bob, "FRIEND", nil); err != nil {
		t.Fatalf("create rel: %v", err)
	}

	it, err := s.OutgoingRels(ctx, alice)
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	rels := engine.DrainRels(it)
	if len(rels) != 1 || rels[0].End != bob {
		t.Fatalf("expected one buffered outgoing rel alice->bob, got %#v", rels)
	}
}
