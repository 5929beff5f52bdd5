package index

import (
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager([]Declaration{
		{Label: "Person", Property: "name", Kind: KindExact},
		{Label: "Person", Property: "age", Kind: KindRange},
		{Label: "Person", Property: "bio", Kind: KindFullText},
		{Label: "Person", Kind: KindComposite, Name: "by_city_age", Properties: []string{"city", "age"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestManagerOnNodeCreateMaintainsAllKinds(t *testing.T) {
	m := newTestManager(t)
	n := &model.Node{
		ID:     1,
		Labels: []string{"Person"},
		Props: value.Map{
			"name": value.Text("alice"),
			"age":  value.Int(30),
			"bio":  value.Text("loves graphs"),
			"city": value.Text("nyc"),
		},
	}
	m.OnNodeCreate(n)

	if got := m.Exact().Find("Person", "name", value.Text("alice")); len(got) != 1 || got[0] != 1 {
		t.Fatalf("exact index not maintained, got %v", got)
	}
	if got := m.Range().Query("Person", "age", OpGE, value.Int(0), value.Int(0)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("range index not maintained, got %v", got)
	}
	if got := m.FullText().Search("Person", "bio", "graphs", MatchAny); len(got) != 1 || got[0] != 1 {
		t.Fatalf("fulltext index not maintained, got %v", got)
	}
	c, ok := m.Composite("by_city_age")
	if !ok {
		t.Fatalf("expected composite index to be registered")
	}
	if got := c.Exact([]value.Value{value.Text("nyc"), value.Int(30)}); len(got) != 1 || got[0] != 1 {
		t.Fatalf("composite index not maintained, got %v", got)
	}
}

func TestManagerOnNodeUpdateMovesEntries(t *testing.T) {
	m := newTestManager(t)
	oldProps := value.Map{"name": value.Text("alice"), "age": value.Int(30)}
	n := &model.Node{ID: 1, Labels: []string{"Person"}, Props: oldProps.Clone()}
	m.OnNodeCreate(n)

	n.Props = value.Map{"name": value.Text("alicia"), "age": value.Int(31)}
	m.OnNodeUpdate(n, oldProps)

	if got := m.Exact().Find("Person", "name", value.Text("alice")); len(got) != 0 {
		t.Fatalf("expected old value removed, got %v", got)
	}
	if got := m.Exact().Find("Person", "name", value.Text("alicia")); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected new value indexed, got %v", got)
	}
}

func TestManagerOnNodeDeleteRemovesEntries(t *testing.T) {
	m := newTestManager(t)
	props := value.Map{"name": value.Text("alice"), "age": value.Int(30)}
	n := &model.Node{ID: 1, Labels: []string{"Person"}, Props: props}
	m.OnNodeCreate(n)
	m.OnNodeDelete(n)

	if got := m.Exact().Find("Person", "name", value.Text("alice")); len(got) != 0 {
		t.Fatalf("expected entries removed on delete, got %v", got)
	}
}

func TestManagerRebuildReconstructsFromScratch(t *testing.T) {
	m := newTestManager(t)
	nodes := []*model.Node{
		{ID: 1, Labels: []string{"Person"}, Props: value.Map{"name": value.Text("alice"), "age": value.Int(30)}},
		{ID: 2, Labels: []string{"Person"}, Props: value.Map{"name": value.Text("bob"), "age": value.Int(25)}},
	}
	m.Rebuild(nodes)

	if got := m.Exact().Find("Person", "name", value.Text("alice")); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected alice indexed after rebuild, got %v", got)
	}
	if got := m.Exact().Find("Person", "name", value.Text("bob")); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected bob indexed after rebuild, got %v", got)
	}
}
