package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/pkg/graphdb"
)

// server bundles the graph and whatever the handlers need beyond it
// (currently nothing else).
type server struct {
	g *graphdb.Graph
}

func parseNodeID(r *http.Request) (graphdb.NodeID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, graphcode.InvalidArgument("id", "not a valid node id")
	}
	return graphdb.NodeID(id), nil
}

func parseRelID(r *http.Request) (graphdb.RelID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, graphcode.InvalidArgument("id", "not a valid relationship id")
	}
	return graphdb.RelID(id), nil
}

func (s *server) createNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	props, err := propsFromJSON(req.Props)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.g.CreateNode(r.Context(), req.Labels, props)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]graphdb.NodeID{"id": id})
}

func (s *server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.g.AllNodes(r.Context())
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

func (s *server) getNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, found, err := s.g.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, graphcode.InvalidReference("node", mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, nodeToJSON(n))
}

func (s *server) updateNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	props, err := propsFromJSON(req.Props)
	if err != nil {
		writeError(w, err)
		return
	}
	tx := s.g.Begin(txnOptions())
	if err := tx.UpdateNodeProps(r.Context(), id, props); err != nil {
		_ = tx.Rollback(r.Context())
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	n, _, err := s.g.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeToJSON(n))
}

func (s *server) deleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.g.DeleteNode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, graphcode.InvalidReference("node", mux.Vars(r)["id"]))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) nodeNeighbors(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.g.NeighborsOut(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	in, err := s.g.NeighborsIn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	outJSON := make([]relJSON, len(out))
	for i, rel := range out {
		outJSON[i] = relToJSON(rel)
	}
	inJSON := make([]relJSON, len(in))
	for i, rel := range in {
		inJSON[i] = relToJSON(rel)
	}
	writeJSON(w, http.StatusOK, map[string]any{"outgoing": outJSON, "incoming": inJSON})
}
