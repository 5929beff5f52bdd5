package index

import (
	"strings"
	"unicode"

	"github.com/r3e-network/graphdb/internal/graph/model"
)

// Tokenize splits s on Unicode whitespace, strips non-alphanumeric runes
// from each piece, and lowercases the result — the tokenizer both
// indexing and querying must share so that queries find what was indexed.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
		}
	}
	return tokens
}

// FullTextIndex is an inverted (label, property, token) -> NodeId
// mapping.
type FullTextIndex struct {
	entries map[fullTextKey]map[model.NodeID]struct{}
}

type fullTextKey struct {
	label    string
	property string
	token    string
}

// NewFullTextIndex returns an empty full-text index.
func NewFullTextIndex() *FullTextIndex {
	return &FullTextIndex{entries: make(map[fullTextKey]map[model.NodeID]struct{})}
}

// Index tokenizes text and adds id under every resulting token.
func (idx *FullTextIndex) Index(label, property, text string, id model.NodeID) {
	for _, tok := range Tokenize(text) {
		key := fullTextKey{label, property, tok}
		set, ok := idx.entries[key]
		if !ok {
			set = make(map[model.NodeID]struct{})
			idx.entries[key] = set
		}
		set[id] = struct{}{}
	}
}

// Remove tokenizes text and removes id from every resulting token.
func (idx *FullTextIndex) Remove(label, property, text string, id model.NodeID) {
	for _, tok := range Tokenize(text) {
		key := fullTextKey{label, property, tok}
		if set, ok := idx.entries[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.entries, key)
			}
		}
	}
}

// MatchMode selects how a multi-token query combines per-token matches.
type MatchMode int

const (
	// MatchAny unions matches across tokens (the default, "OR").
	MatchAny MatchMode = iota
	// MatchAll intersects matches across tokens ("AND").
	MatchAll
)

// Search tokenizes query the same way indexing does and combines the
// per-token NodeId sets according to mode.
func (idx *FullTextIndex) Search(label, property, query string, mode MatchMode) []model.NodeID {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	var result map[model.NodeID]struct{}
	for i, tok := range tokens {
		set := idx.entries[fullTextKey{label, property, tok}]
		if mode == MatchAny {
			if result == nil {
				result = make(map[model.NodeID]struct{})
			}
			for id := range set {
				result[id] = struct{}{}
			}
			continue
		}
		if i == 0 {
			result = make(map[model.NodeID]struct{}, len(set))
			for id := range set {
				result[id] = struct{}{}
			}
			continue
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
	}
	return sortedNodeIDs(result)
}
