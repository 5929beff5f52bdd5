package diskstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetNode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, found, err := s.GetNode(ctx, id)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if n.Labels[0] != "User" || n.Props["name"] != value.Text("Alice") {
		t.Fatalf("unexpected node: %#v", n)
	}
}

func TestCreateRelMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alice, _ := s.CreateNode(ctx, []string{"User"}, nil)

	_, err := s.CreateRel(ctx, alice, 12345, "FRIEND", nil)
	if !graphcode.IsGraphError(err) || graphcode.AsGraphError(err).Code != graphcode.CodeInvalidReference {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
}

func TestDeleteNodeCascadesRelationships(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

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
	it, _ := s.IncomingRels(ctx, bob)
	if rels := engine.DrainRels(it); len(rels) != 0 {
		t.Fatalf("expected bob to have no incoming rels, got %#v", rels)
	}
}

func TestCountersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id1, _ := s1.CreateNode(ctx, []string{"User"}, nil)
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	id2, _ := s2.CreateNode(ctx, []string{"User"}, nil)
	if id2 <= id1 {
		t.Fatalf("expected id allocation to continue past reopen: id1=%d id2=%d", id1, id2)
	}
}

func TestStatsCountsNodesAndRels(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	alice, _ := s.CreateNode(ctx, []string{"User"}, nil)
	bob, _ := s.CreateNode(ctx, []string{"User"}, nil)
	s.CreateRel(ctx, alice, bob, "FRIEND", nil)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NodeCount != 2 || stats.RelCount != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
