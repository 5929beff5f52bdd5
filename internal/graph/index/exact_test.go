package index

import (
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func TestExactIndexAddFindRemove(t *testing.T) {
	idx := NewExactIndex()
	idx.Add("Person", "name", value.Text("alice"), model.NodeID(1))
	idx.Add("Person", "name", value.Text("alice"), model.NodeID(2))
	idx.Add("Person", "name", value.Text("bob"), model.NodeID(3))

	got := idx.Find("Person", "name", value.Text("alice"))
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}

	idx.Remove("Person", "name", value.Text("alice"), model.NodeID(1))
	got = idx.Find("Person", "name", value.Text("alice"))
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2] after remove, got %v", got)
	}
}

func TestExactIndexRejectsFloat(t *testing.T) {
	idx := NewExactIndex()
	idx.Add("Metric", "value", value.Float(1.5), model.NodeID(1))
	got := idx.Find("Metric", "value", value.Float(1.5))
	if got != nil {
		t.Fatalf("expected Float values to be rejected, got %v", got)
	}
}

func TestExactIndexFindMissingReturnsNil(t *testing.T) {
	idx := NewExactIndex()
	if got := idx.Find("Person", "name", value.Text("nobody")); got != nil {
		t.Fatalf("expected nil for missing key, got %v", got)
	}
}

func TestExactIndexDistinguishesBoolAndInt(t *testing.T) {
	idx := NewExactIndex()
	idx.Add("Flag", "active", value.Bool(true), model.NodeID(1))
	idx.Add("Flag", "active", value.Int(1), model.NodeID(2))

	trueIDs := idx.Find("Flag", "active", value.Bool(true))
	intIDs := idx.Find("Flag", "active", value.Int(1))
	if len(trueIDs) != 1 || trueIDs[0] != 1 {
		t.Fatalf("expected [1] for Bool(true), got %v", trueIDs)
	}
	if len(intIDs) != 1 || intIDs[0] != 2 {
		t.Fatalf("expected [2] for Int(1), got %v", intIDs)
	}
}
