package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/r3e-network/graphdb/infrastructure/ratelimit"
	"github.com/r3e-network/graphdb/pkg/logger"
	"github.com/r3e-network/graphdb/pkg/metrics"
)

// registerRoutes wires every endpoint the adapter serves: a health
// endpoint outside any middleware-heavy subrouter, then every resource
// route grouped under common middleware.
func registerRoutes(router *mux.Router, s *server, log *logger.Logger, rl *ratelimit.RateLimiter) {
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("").Subrouter()
	api.Use(loggingMiddleware(log))
	api.Use(recoveryMiddleware(log))
	api.Use(corsMiddleware)
	if rl != nil {
		api.Use(rateLimitMiddleware(rl))
	}

	api.HandleFunc("/nodes", s.createNode).Methods(http.MethodPost)
	api.HandleFunc("/nodes", s.listNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}", s.getNode).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}", s.updateNode).Methods(http.MethodPut)
	api.HandleFunc("/nodes/{id}", s.deleteNode).Methods(http.MethodDelete)
	api.HandleFunc("/nodes/{id}/neighbors", s.nodeNeighbors).Methods(http.MethodGet)

	api.HandleFunc("/rels", s.createRel).Methods(http.MethodPost)
	api.HandleFunc("/rels/{id}", s.getRel).Methods(http.MethodGet)
	api.HandleFunc("/rels/{id}", s.updateRel).Methods(http.MethodPut)
	api.HandleFunc("/rels/{id}", s.deleteRel).Methods(http.MethodDelete)

	api.HandleFunc("/query", s.queryHandler).Methods(http.MethodPost)
	api.HandleFunc("/stream/query", s.streamQueryHandler).Methods(http.MethodGet)
	api.HandleFunc("/cypher", s.cypherHandler).Methods(http.MethodPost)
	api.HandleFunc("/search", s.searchHandler).Methods(http.MethodPost)
	api.HandleFunc("/batch/nodes", s.batchNodes).Methods(http.MethodPost)
	api.HandleFunc("/batch/rels", s.batchRels).Methods(http.MethodPost)

	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/labels", s.labels).Methods(http.MethodGet)
	api.HandleFunc("/rel-types", s.relTypes).Methods(http.MethodGet)
}
