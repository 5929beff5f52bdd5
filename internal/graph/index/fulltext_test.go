package index

import (
	"reflect"
	"testing"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

func TestTokenizeLowercasesAndStripsPunctuation(t *testing.T) {
	got := Tokenize("Hello, World! Go-lang rocks.")
	want := []string{"hello", "world", "golang", "rocks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	if got := Tokenize("   "); len(got) != 0 {
		t.Fatalf("expected no tokens for blank input, got %v", got)
	}
}

func TestFullTextIndexMatchAny(t *testing.T) {
	idx := NewFullTextIndex()
	idx.Index("Article", "body", "the quick brown fox", model.NodeID(1))
	idx.Index("Article", "body", "a lazy dog sleeps", model.NodeID(2))

	got := idx.Search("Article", "body", "fox dog", MatchAny)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2] for OR search, got %v", got)
	}
}

func TestFullTextIndexMatchAll(t *testing.T) {
	idx := NewFullTextIndex()
	idx.Index("Article", "body", "the quick brown fox", model.NodeID(1))
	idx.Index("Article", "body", "quick lazy dog", model.NodeID(2))

	got := idx.Search("Article", "body", "quick fox", MatchAll)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected [1] for AND search, got %v", got)
	}
}

func TestFullTextIndexRemove(t *testing.T) {
	idx := NewFullTextIndex()
	idx.Index("Article", "body", "the quick brown fox", model.NodeID(1))
	idx.Remove("Article", "body", "the quick brown fox", model.NodeID(1))

	got := idx.Search("Article", "body", "fox", MatchAny)
	if len(got) != 0 {
		t.Fatalf("expected no matches after removal, got %v", got)
	}
}

func TestFullTextIndexSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := NewFullTextIndex()
	idx.Index("Article", "body", "the quick brown fox", model.NodeID(1))
	got := idx.Search("Article", "body", "   ", MatchAny)
	if got != nil {
		t.Fatalf("expected nil for an empty query, got %v", got)
	}
}
