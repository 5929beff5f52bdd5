package hybridstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/bufferstore"
	"github.com/r3e-network/graphdb/internal/graph/diskstore"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	disk, err := diskstore.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("open disk: %v", err)
	}
	s, err := New(context.Background(), disk, Config{
		NodeEntries:      10,
		RelEntries:       10,
		AdjacencyEntries: 10,
		Buffer:           bufferstore.Config{},
	})
	if err != nil {
		t.Fatalf("new hybrid: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetNodePopulatesCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok := s.nodeCache.Get(id); ok {
		t.Fatalf("cache should start empty until a Get populates it")
	}

	n, found, err := s.GetNode(ctx, id)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if n.Props["name"] != value.Text("Alice") {
		t.Fatalf("unexpected props: %#v", n.Props)
	}
	if _, ok := s.nodeCache.Get(id); !ok {
		t.Fatalf("expected GetNode to populate the cache")
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _ := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	s.GetNode(ctx, id) // populate cache

	if err := s.UpdateNodeProps(ctx, id, value.Map{"name": value.Text("Alicia")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, _, _ := s.GetNode(ctx, id)
	if n.Props["name"] != value.Text("Alicia") {
		t.Fatalf("expected fresh read to see updated props, got %#v", n.Props)
	}
}

func TestDeleteNodeCascadesThroughAllTiers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice, _ := s.CreateNode(ctx, []string{"User"}, nil)
	bob, _ := s.CreateNode(ctx, []string{"User"}, nil)
	relID, _ := s.CreateRel(ctx, alice, bob, "FRIEND", nil)

	existed, err := s.DeleteNode(ctx, alice)
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, found, _ := s.GetRel(ctx, relID); found {
		t.Fatalf("expected relationship to be gone after endpoint delete")
	}
}
