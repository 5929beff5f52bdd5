package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/r3e-network/graphdb/internal/graph/graphcode"
	"github.com/r3e-network/graphdb/pkg/graphdb"
)

func (s *server) createRel(w http.ResponseWriter, r *http.Request) {
	var req createRelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, graphcode.InvalidArgument("body", "malformed JSON"))
		return
	}
	props, err := propsFromJSON(req.Props)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.g.CreateRel(r.Context(), req.Start, req.End, req.Type, props)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]graphdb.RelID{"id": id})
}

func (s *server) getRel(w http.ResponseWriter, r *http.Request) {
	id, err := parseRelID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rel, found, err := s.g.GetRel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, graphcode.InvalidReference("rel", mux.Vars(r)["id"]))
		return
	}
	writeJSON(w, http.StatusOK, relToJSON(rel))
}

func (s *server) updateRel(w http.ResponseWriter, r *http.Request) {
	id, err := parseRelID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createRelRequest
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
	if err := tx.UpdateRelProps(r.Context(), id, props); err != nil {
		_ = tx.Rollback(r.Context())
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	rel, _, err := s.g.GetRel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, relToJSON(rel))
}

func (s *server) deleteRel(w http.ResponseWriter, r *http.Request) {
	id, err := parseRelID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.g.DeleteRel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, graphcode.InvalidReference("rel", mux.Vars(r)["id"]))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
