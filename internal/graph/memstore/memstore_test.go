package memstore

import (
	"context"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func TestBasicCRUDAndNeighbors(t *testing.T) {
	ctx := context.Background()
	s := New()

	alice, err := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Bob")})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	friendID, err := s.CreateRel(ctx, alice, bob, "FRIEND", value.Map{"since": value.Int(2020)})
	if err != nil {
		t.Fatalf("create rel: %v", err)
	}

	outIt, err := s.OutgoingRels(ctx, alice)
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	out := engine.DrainRels(outIt)
	if len(out) != 1 || out[0].End != bob {
		t.Fatalf("expected alice -> bob, got %#v", out)
	}

	inIt, err := s.IncomingRels(ctx, bob)
	if err != nil {
		t.Fatalf("incoming: %v", err)
	}
	in := engine.DrainRels(inIt)
	if len(in) != 1 || in[0].Start != alice {
		t.Fatalf("expected bob <- alice, got %#v", in)
	}

	existed, err := s.DeleteNode(ctx, alice)
	if err != nil || !existed {
		t.Fatalf("delete alice: existed=%v err=%v", existed, err)
	}

	inIt2, _ := s.IncomingRels(ctx, bob)
	if in2 := engine.DrainRels(inIt2); len(in2) != 0 {
		t.Fatalf("expected bob to have no incoming rels after alice deleted, got %#v", in2)
	}

	if _, found, err := s.GetRel(ctx, friendID); err != nil || found {
		t.Fatalf("expected friend rel to be gone: found=%v err=%v", found, err)
	}
}

func TestCreateRelMissingEndpointIsInvalidReference(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice, _ := s.CreateNode(ctx, []string{"User"}, nil)

	_, err := s.CreateRel(ctx, alice, 9999, "FRIEND", nil)
	if err == nil {
		t.Fatalf("expected an error for a missing endpoint")
	}
	if !graphcode.IsGraphError(err) {
		t.Fatalf("expected a graph error, got %v", err)
	}
	if graphcode.AsGraphError(err).Code != graphcode.CodeInvalidReference {
		t.Fatalf("expected InvalidReference, got %v", graphcode.AsGraphError(err).Code)
	}
}

func TestDeleteAbsentIDReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	s := New()
	existed, err := s.DeleteNode(ctx, 42)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if existed {
		t.Fatalf("expected existed=false for an absent id")
	}
}

func TestVersionIncrementsOnUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})

	if err := s.UpdateNodeProps(ctx, id, value.Map{"name": value.Text("Alicia")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, _, _ := s.GetNode(ctx, id)
	if n.Version != 2 {
		t.Fatalf("expected version 2 after one update, got %d", n.Version)
	}
}

func TestGetNodeReturnsAClone(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.CreateNode(ctx, []string{"User"}, value.Map{"name": value.Text("Alice")})

	n, _, _ := s.GetNode(ctx, id)
	n.Labels[0] = "Mutated"

	again, _, _ := s.GetNode(ctx, id)
	if again.Labels[0] != "User" {
		t.Fatalf("expected mutation of returned clone to not affect stored node")
	}
}

func TestStatsCountsLabelsAndRelTypes(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice, _ := s.CreateNode(ctx, []string{"User", "Admin"}, nil)
	bob, _ := s.CreateNode(ctx, []string{"User"}, nil)
	s.CreateRel(ctx, alice, bob, "FRIEND", nil)
	s.CreateRel(ctx, bob, alice, "FOLLOWS", nil)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NodeCount != 2 || stats.RelCount != 2 {
		t.Fatalf("unexpected counts: %#v", stats)
	}
	if stats.LabelCount != 2 || stats.RelTypeCount != 2 {
		t.Fatalf("unexpected label/rel-type counts: %#v", stats)
	}
}
