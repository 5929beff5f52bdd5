// Package index implements the exact, composite, range, and full-text
// index kinds and the schema registry that declares which
// (label, property) pairs are auto-maintained. The uniqueness/existence
// constraint manager that consults the exact index lives in package
// constraint.
package index

import (
	"fmt"
	"sort"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

// Kind identifies which index structure backs a registered property.
type Kind string

const (
	KindExact    Kind = "exact"
	KindRange    Kind = "range"
	KindFullText Kind = "fulltext"
	KindComposite Kind = "composite"
)

// Declaration is one schema entry: an indexed (label, property) pair for
// exact/range/fulltext kinds, or a named ordered property list for
// composite indexes.
type Declaration struct {
	Label      string
	Property   string
	Kind       Kind
	Name       string   // composite only
	Properties []string // composite only, ordered
}

// Schema is the declarative registry of indexed (label, property) pairs.
// Only writes to a registered (label, property) are index-maintained;
// everything else bypasses indexing for that property.
type Schema struct {
	exact     map[propKey]struct{}
	rangeKeys map[propKey]struct{}
	fullText  map[propKey]struct{}
	composite []Declaration
}

type propKey struct {
	label    string
	property string
}

// NewSchema builds a Schema from a flat declaration list.
func NewSchema(decls []Declaration) (*Schema, error) {
	s := &Schema{
		exact:     make(map[propKey]struct{}),
		rangeKeys: make(map[propKey]struct{}),
		fullText:  make(map[propKey]struct{}),
	}
	for _, d := range decls {
		switch d.Kind {
		case KindExact:
			s.exact[propKey{d.Label, d.Property}] = struct{}{}
		case KindRange:
			s.rangeKeys[propKey{d.Label, d.Property}] = struct{}{}
		case KindFullText:
			s.fullText[propKey{d.Label, d.Property}] = struct{}{}
		case KindComposite:
			if d.Name == "" || len(d.Properties) == 0 {
				return nil, fmt.Errorf("index: composite declaration requires a name and a property list")
			}
			s.composite = append(s.composite, d)
		default:
			return nil, fmt.Errorf("index: unknown kind %q", d.Kind)
		}
	}
	return s, nil
}

// HasExact reports whether (label, property) has a registered exact index.
func (s *Schema) HasExact(label, property string) bool {
	_, ok := s.exact[propKey{label, property}]
	return ok
}

// HasRange reports whether (label, property) has a registered range index.
func (s *Schema) HasRange(label, property string) bool {
	_, ok := s.rangeKeys[propKey{label, property}]
	return ok
}

// HasFullText reports whether (label, property) has a registered
// full-text index.
func (s *Schema) HasFullText(label, property string) bool {
	_, ok := s.fullText[propKey{label, property}]
	return ok
}

// CompositeIndexes returns every composite declaration for label.
func (s *Schema) CompositeIndexes(label string) []Declaration {
	var out []Declaration
	for _, d := range s.composite {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}

// BestCompositeMatch returns the composite declaration for label whose
// leading property list is the longest prefix of props present in the
// supplied predicate set.
func (s *Schema) BestCompositeMatch(label string, available map[string]struct{}) (Declaration, int, bool) {
	var best Declaration
	bestLen := 0
	found := false
	for _, d := range s.composite {
		if d.Label != label {
			continue
		}
		n := leadingMatchLength(d.Properties, available)
		if n > bestLen {
			bestLen = n
			best = d
			found = true
		}
	}
	return best, bestLen, found
}

func leadingMatchLength(props []string, available map[string]struct{}) int {
	n := 0
	for _, p := range props {
		if _, ok := available[p]; !ok {
			break
		}
		n++
	}
	return n
}

// sortedNodeIDs returns ids as an ascending slice.
func sortedNodeIDs(set map[model.NodeID]struct{}) []model.NodeID {
	out := make([]model.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
