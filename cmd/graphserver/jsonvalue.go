package main

import (
	"encoding/json"
	"reflect"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// valueToJSON renders v as the tagged-union wire encoding:
// {"int": …}, {"float": …}, {"bool": …}, or {"text": …}.
func valueToJSON(v value.Value) json.RawMessage {
	var raw []byte
	switch v.Kind() {
	case value.KindInt:
		i, _ := v.AsInt()
		raw, _ = json.Marshal(struct {
			Int int64 `json:"int"`
		}{i})
	case value.KindFloat:
		f, _ := v.AsFloat()
		raw, _ = json.Marshal(struct {
			Float float64 `json:"float"`
		}{f})
	case value.KindBool:
		b, _ := v.AsBool()
		raw, _ = json.Marshal(struct {
			Bool bool `json:"bool"`
		}{b})
	default:
		s, _ := v.AsText()
		raw, _ = json.Marshal(struct {
			Text string `json:"text"`
		}{s})
	}
	return raw
}

// valueFromJSON parses a tagged-union Value out of raw, letting gjson
// pick the one populated field without decoding the whole object.
func valueFromJSON(raw json.RawMessage) (value.Value, error) {
	parsed := gjson.ParseBytes(raw)
	if r := parsed.Get("int"); r.Exists() {
		return value.Int(r.Int()), nil
	}
	if r := parsed.Get("float"); r.Exists() {
		return value.Float(r.Float()), nil
	}
	if r := parsed.Get("bool"); r.Exists() {
		return value.Bool(r.Bool()), nil
	}
	if r := parsed.Get("text"); r.Exists() {
		return value.Text(r.String()), nil
	}
	return value.Value{}, graphcode.InvalidArgument("value", "expected one of int/float/bool/text")
}

func propsToJSON(props value.Map) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(props))
	for k, v := range props {
		out[k] = valueToJSON(v)
	}
	return out
}

// nodeDocument renders a node as the generic tree jsonpath.Get walks:
// the same {"id", "labels", "props"} shape nodeToJSON produces, decoded
// back into plain maps/slices so arbitrary path expressions (not just
// the top-level prop keys prop_eq/prop_neq address) can select into it.
func nodeDocument(n *model.Node) (any, error) {
	raw, err := json.Marshal(nodeToJSON(n))
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// matchesPath reports whether jsonpath.Get(path, doc) for node n yields a
// value deep-equal to the JSON-decoded want, the structured-filter
// equivalent of query.Builder's flat WherePropEq for queries that need to
// address a nested or positional field (a label slot, a prop's type tag)
// rather than a bare property name.
func matchesPath(n *model.Node, clause whereClause) (bool, error) {
	doc, err := nodeDocument(n)
	if err != nil {
		return false, err
	}
	got, err := jsonpath.Get(clause.Path, doc)
	if err != nil {
		return false, nil
	}
	var want any
	if err := json.Unmarshal(clause.Value, &want); err != nil {
		return false, graphcode.InvalidArgument("where.value", "malformed JSON")
	}
	return reflect.DeepEqual(got, want), nil
}

// filterByWhere keeps only the nodes matching every where clause.
func filterByWhere(nodes []*model.Node, clauses []whereClause) ([]*model.Node, error) {
	if len(clauses) == 0 {
		return nodes, nil
	}
	kept := make([]*model.Node, 0, len(nodes))
	for _, n := range nodes {
		all := true
		for _, c := range clauses {
			ok, err := matchesPath(n, c)
			if err != nil {
				return nil, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			kept = append(kept, n)
		}
	}
	return kept, nil
}

func propsFromJSON(raw map[string]json.RawMessage) (value.Map, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(value.Map, len(raw))
	for k, v := range raw {
		parsed, err := valueFromJSON(v)
		if err != nil {
			return nil, err
		}
		out[k] = parsed
	}
	return out, nil
}
