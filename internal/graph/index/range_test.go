package index

import (
	"reflect"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func TestRangeIndexQueryOperators(t *testing.T) {
	idx := NewRangeIndex()
	idx.Add("Person", "age", value.Int(10), model.NodeID(1))
	idx.Add("Person", "age", value.Int(20), model.NodeID(2))
	idx.Add("Person", "age", value.Int(30), model.NodeID(3))

	cases := []struct {
		name string
		op   RangeOp
		lo   int64
		hi   int64
		want []model.NodeID
	}{
		{"gt", OpGT, 10, 0, []model.NodeID{2, 3}},
		{"ge", OpGE, 20, 0, []model.NodeID{2, 3}},
		{"lt", OpLT, 20, 0, []model.NodeID{1}},
		{"le", OpLE, 20, 0, []model.NodeID{1, 2}},
		{"between", OpBetween, 10, 20, []model.NodeID{1, 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := idx.Query("Person", "age", c.op, value.Int(c.lo), value.Int(c.hi))
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("%s: got %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestRangeIndexKeepsIntAndFloatSeparate(t *testing.T) {
	idx := NewRangeIndex()
	idx.Add("Metric", "score", value.Int(5), model.NodeID(1))
	idx.Add("Metric", "score", value.Float(5.0), model.NodeID(2))

	intResult := idx.Query("Metric", "score", OpGE, value.Int(0), value.Int(0))
	floatResult := idx.Query("Metric", "score", OpGE, value.Float(0), value.Float(0))

	if len(intResult) != 1 || intResult[0] != 1 {
		t.Fatalf("expected only the Int entry, got %v", intResult)
	}
	if len(floatResult) != 1 || floatResult[0] != 2 {
		t.Fatalf("expected only the Float entry, got %v", floatResult)
	}
}

func TestRangeIndexRemove(t *testing.T) {
	idx := NewRangeIndex()
	idx.Add("Person", "age", value.Int(10), model.NodeID(1))
	idx.Remove("Person", "age", value.Int(10), model.NodeID(1))
	got := idx.Query("Person", "age", OpGE, value.Int(0), value.Int(0))
	if len(got) != 0 {
		t.Fatalf("expected empty result after remove, got %v", got)
	}
}

func TestRangeIndexQueryUnknownBucketReturnsNil(t *testing.T) {
	idx := NewRangeIndex()
	got := idx.Query("Nothing", "here", OpGE, value.Int(0), value.Int(0))
	if got != nil {
		t.Fatalf("expected nil for unknown bucket, got %v", got)
	}
}
