package main

import (
	"encoding/json"

	"github.com/r3e-network/graphdb/pkg/graphdb"
)

type nodeJSON struct {
	ID      graphdb.NodeID             `json:"id"`
	Labels  []string                   `json:"labels"`
	Props   map[string]json.RawMessage `json:"props"`
	Version uint64                     `json:"version"`
}

func nodeToJSON(n *graphdb.Node) nodeJSON {
	return nodeJSON{ID: n.ID, Labels: n.Labels, Props: propsToJSON(n.Props), Version: n.Version}
}

type relJSON struct {
	ID      graphdb.RelID              `json:"id"`
	Start   graphdb.NodeID             `json:"start"`
	End     graphdb.NodeID             `json:"end"`
	Type    string                     `json:"type"`
	Props   map[string]json.RawMessage `json:"props"`
	Version uint64                     `json:"version"`
}

func relToJSON(r *graphdb.Relationship) relJSON {
	return relJSON{ID: r.ID, Start: r.Start, End: r.End, Type: r.Type, Props: propsToJSON(r.Props), Version: r.Version}
}

type createNodeRequest struct {
	Labels []string                   `json:"labels"`
	Props  map[string]json.RawMessage `json:"props"`
}

type createRelRequest struct {
	Start graphdb.NodeID             `json:"start"`
	End   graphdb.NodeID             `json:"end"`
	Type  string                     `json:"type"`
	Props map[string]json.RawMessage `json:"props"`
}

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type cypherRequest struct {
	Query  string                     `json:"query"`
	Params map[string]json.RawMessage `json:"params"`
}

type structuredQueryRequest struct {
	Label    string                     `json:"label"`
	PropEq   map[string]json.RawMessage `json:"prop_eq"`
	PropNeq  map[string]json.RawMessage `json:"prop_neq"`
	Where    []whereClause              `json:"where"`
	Offset   int                        `json:"offset"`
	Limit    int                        `json:"limit"`
	OrderBy  string                     `json:"order_by"`
	OrderAsc bool                       `json:"order_asc"`
}

// whereClause addresses an arbitrary field of a node's JSON document (id,
// labels, or a tagged-union prop) by JSONPath, for filters that don't fit
// the flat prop_eq/prop_neq maps — e.g. matching against a label position
// (`$.labels[0]`) or a prop's type tag directly (`$.props.age.int`).
type whereClause struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type searchRequest struct {
	Label    string `json:"label"`
	Property string `json:"property"`
	Substr   string `json:"substr"`
}

type batchNodesRequest struct {
	Nodes []createNodeRequest `json:"nodes"`
}

type batchRelsRequest struct {
	Rels []createRelRequest `json:"rels"`
}

type statsResponse struct {
	NodeCount          int64   `json:"node_count"`
	RelCount           int64   `json:"rel_count"`
	LabelCount         int64   `json:"label_count"`
	RelTypeCount       int64   `json:"rel_type_count"`
	ActiveTransactions int     `json:"active_transactions"`
	ProcessRSSBytes    uint64  `json:"process_rss_bytes,omitempty"`
	ProcessCPUPercent  float64 `json:"process_cpu_percent,omitempty"`
	GoroutineCount     int     `json:"goroutine_count"`
}
