package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/r3e-network/graphdb/internal/graph/cypher"
	"github.com/r3e-network/graphdb/internal/graph/cypherexec"
	"github.com/r3e-network/graphdb/internal/graph/engine"
	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
	"github.com/r3e-network/graphdb/pkg/graphdb"
)

// cypherHandler executes a POST /cypher text query.
func (s *server) cypherHandler(w http.ResponseWriter, r *http.Request) {
	var req cypherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	params, err := propsFromJSON(req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	stmt, err := cypher.Parse(req.Query)
	if err != nil {
		writeError(w, graphcode.BadQuery(err.Error(), err))
		return
	}
	res, err := s.g.ExecuteStatement(r.Context(), stmt, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToJSON(res))
}

type resultJSON struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func resultToJSON(res *cypherexec.Result) resultJSON {
	rows := make([]map[string]any, len(res.Rows))
	for i, row := range res.Rows {
		out := make(map[string]any, len(row))
		for col, cell := range row {
			out[col] = cellToJSON(cell)
		}
		rows[i] = out
	}
	return resultJSON{Columns: res.Columns, Rows: rows}
}

func cellToJSON(c cypherexec.Cell) any {
	switch c.Kind {
	case cypherexec.CellNull:
		return nil
	case cypherexec.CellScalar:
		return valueToJSON(c.Scalar)
	case cypherexec.CellNode:
		return nodeToJSON(c.Node)
	case cypherexec.CellRel:
		return relToJSON(c.Rel)
	case cypherexec.CellList:
		items := make([]any, len(c.List))
		for i, item := range c.List {
			items[i] = cellToJSON(item)
		}
		return items
	default:
		return nil
	}
}

// queryHandler executes a POST /query structured filter against the
// fluent query.Builder.
func (s *server) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req structuredQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	if req.Label == "" {
		writeError(w, graphcode.InvalidArgument("label", "required"))
		return
	}

	b := s.g.NewQueryBuilder(r.Context()).FromLabel(req.Label)
	for k, raw := range req.PropEq {
		v, err := valueFromJSON(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		b = b.WherePropEq(k, v)
	}
	for k, raw := range req.PropNeq {
		v, err := valueFromJSON(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		b = b.WherePropNeq(k, v)
	}
	if len(req.Where) > 0 {
		preFilter, err := b.CollectNodes()
		if err != nil {
			writeError(w, err)
			return
		}
		matched, err := filterByWhere(preFilter, req.Where)
		if err != nil {
			writeError(w, err)
			return
		}
		ids := make([]model.NodeID, len(matched))
		for i, n := range matched {
			ids[i] = n.ID
		}
		b = s.g.NewQueryBuilder(r.Context()).Seed(ids)
	}
	if req.OrderBy != "" {
		b = b.OrderBy(req.OrderBy, req.OrderAsc)
	}
	if req.Limit > 0 || req.Offset > 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = 1 << 30
		}
		b = b.Paginate(req.Offset, limit)
	}

	nodes, err := b.CollectNodes()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]nodeJSON, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToJSON(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// searchHandler implements POST /search: a substring match over one
// label/property pair, the thin adapter's equivalent of the fulltext
// index's Search entry point.
func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	if req.Label == "" || req.Property == "" {
		writeError(w, graphcode.InvalidArgument("label/property", "both required"))
		return
	}

	nodes, err := s.g.NewQueryBuilder(r.Context()).FromLabel(req.Label).CollectNodes()
	if err != nil {
		writeError(w, err)
		return
	}
	var out []nodeJSON
	for _, n := range nodes {
		prop, ok := n.Props[req.Property]
		if !ok {
			continue
		}
		text, ok := prop.AsText()
		if !ok || !strings.Contains(strings.ToLower(text), strings.ToLower(req.Substr)) {
			continue
		}
		out = append(out, nodeToJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

// batchNodes implements POST /batch/nodes via the engine's bulk
// creation primitive (Graph.BatchCreateNodes), for ingesting data
// already known to satisfy any registered constraints.
func (s *server) batchNodes(w http.ResponseWriter, r *http.Request) {
	var req batchNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	labels := make([][]string, len(req.Nodes))
	props := make([]value.Map, len(req.Nodes))
	for i, n := range req.Nodes {
		p, err := propsFromJSON(n.Props)
		if err != nil {
			writeError(w, err)
			return
		}
		labels[i] = n.Labels
		props[i] = p
	}
	ids, err := s.g.BatchCreateNodes(r.Context(), labels, props)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]graphdb.NodeID{"ids": ids})
}

// batchRels implements POST /batch/rels via Graph.BatchCreateRels,
// mirroring batchNodes.
func (s *server) batchRels(w http.ResponseWriter, r *http.Request) {
	var req batchRelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	specs := make([]engine.RelSpec, len(req.Rels))
	for i, rel := range req.Rels {
		props, err := propsFromJSON(rel.Props)
		if err != nil {
			writeError(w, err)
			return
		}
		specs[i] = engine.RelSpec{Start: rel.Start, End: rel.End, Type: rel.Type, Props: props}
	}
	ids, err := s.g.BatchCreateRels(r.Context(), specs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]graphdb.RelID{"ids": ids})
}
