package constraint

import (
	"errors"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/index"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

func TestValidateRejectsDuplicateUniqueValue(t *testing.T) {
	exact := index.NewExactIndex()
	exact.Add("User", "email", value.Text("a@example.com"), model.NodeID(1))

	m := NewManager(exact)
	m.RegisterUnique("User", "email")

	candidate := &model.Node{
		ID:     2,
		Labels: []string{"User"},
		Props:  value.Map{"email": value.Text("a@example.com")},
	}
	err := m.Validate(candidate, candidate.ID)
	if err == nil {
		t.Fatalf("expected a uniqueness violation")
	}
	var ge *graphcode.Error
	if !errors.As(err, &ge) || ge.Code != graphcode.CodeUniquenessViolation {
		t.Fatalf("expected CodeUniquenessViolation, got %v", err)
	}
}

func TestValidateAllowsSelfOnUpdate(t *testing.T) {
	exact := index.NewExactIndex()
	exact.Add("User", "email", value.Text("a@example.com"), model.NodeID(1))

	m := NewManager(exact)
	m.RegisterUnique("User", "email")

	candidate := &model.Node{
		ID:     1,
		Labels: []string{"User"},
		Props:  value.Map{"email": value.Text("a@example.com")},
	}
	if err := m.Validate(candidate, candidate.ID); err != nil {
		t.Fatalf("expected no violation when the only match is the node itself, got %v", err)
	}
}

func TestValidateRejectsMissingRequiredProperty(t *testing.T) {
	exact := index.NewExactIndex()
	m := NewManager(exact)
	m.RegisterExists("User", "email")

	candidate := &model.Node{ID: 1, Labels: []string{"User"}, Props: value.Map{}}
	err := m.Validate(candidate, candidate.ID)
	if err == nil {
		t.Fatalf("expected an existence violation")
	}
	var ge *graphcode.Error
	if !errors.As(err, &ge) || ge.Code != graphcode.CodeExistenceViolation {
		t.Fatalf("expected CodeExistenceViolation, got %v", err)
	}
}

func TestValidateIgnoresFloatUniqueProperties(t *testing.T) {
	exact := index.NewExactIndex()
	m := NewManager(exact)
	m.RegisterUnique("Metric", "score")

	candidate := &model.Node{ID: 1, Labels: []string{"Metric"}, Props: value.Map{"score": value.Float(1.5)}}
	if err := m.Validate(candidate, candidate.ID); err != nil {
		t.Fatalf("expected Float properties to bypass uniqueness checking, got %v", err)
	}
}

func TestUnregisterRemovesRules(t *testing.T) {
	exact := index.NewExactIndex()
	exact.Add("User", "email", value.Text("a@example.com"), model.NodeID(1))

	m := NewManager(exact)
	m.RegisterUnique("User", "email")
	m.Unregister("User", "email")

	candidate := &model.Node{ID: 2, Labels: []string{"User"}, Props: value.Map{"email": value.Text("a@example.com")}}
	if err := m.Validate(candidate, candidate.ID); err != nil {
		t.Fatalf("expected no violation after unregistering, got %v", err)
	}
}

func TestValidateNoRulesIsNoop(t *testing.T) {
	m := NewManager(index.NewExactIndex())
	candidate := &model.Node{ID: 1, Labels: []string{"User"}, Props: value.Map{}}
	if err := m.Validate(candidate, candidate.ID); err != nil {
		t.Fatalf("expected no error with no registered rules, got %v", err)
	}
}
