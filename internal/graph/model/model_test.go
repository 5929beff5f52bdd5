package model

import (
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/value"
)

func TestNodeHasLabel(t *testing.T) {
	n := &Node{ID: 1, Labels: []string{"User", "Admin"}}
	if !n.HasLabel("Admin") {
		t.Fatalf("expected HasLabel(Admin) to be true")
	}
	if n.HasLabel("Missing") {
		t.Fatalf("expected HasLabel(Missing) to be false")
	}
}

func TestNodeCloneIsIndependent(t *testing.T) {
	n := &Node{ID: 1, Labels: []string{"User"}, Props: value.Map{"name": value.Text("Alice")}}
	clone := n.Clone()
	clone.Labels[0] = "Mutated"
	clone.Props["name"] = value.Text("Bob")

	if n.Labels[0] != "User" {
		t.Fatalf("mutating clone labels affected original")
	}
	if n.Props["name"] != value.Text("Alice") {
		t.Fatalf("mutating clone props affected original")
	}
}

func TestAdjacencyRemove(t *testing.T) {
	a := &Adjacency{Outgoing: []RelID{1, 2, 3}, Incoming: []RelID{4, 5}}
	a.RemoveOutgoing(2)
	a.RemoveIncoming(4)

	if len(a.Outgoing) != 2 || a.Outgoing[0] != 1 || a.Outgoing[1] != 3 {
		t.Fatalf("unexpected outgoing after remove: %v", a.Outgoing)
	}
	if len(a.Incoming) != 1 || a.Incoming[0] != 5 {
		t.Fatalf("unexpected incoming after remove: %v", a.Incoming)
	}
}

func TestAdjacencyRemoveMissingIsNoop(t *testing.T) {
	a := &Adjacency{Outgoing: []RelID{1, 2}}
	a.RemoveOutgoing(99)
	if len(a.Outgoing) != 2 {
		t.Fatalf("expected no change when removing a missing id")
	}
}
