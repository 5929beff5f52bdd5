package main

import (
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.g.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{
		NodeCount:          st.NodeCount,
		RelCount:           st.RelCount,
		LabelCount:         st.LabelCount,
		RelTypeCount:       st.RelTypeCount,
		ActiveTransactions: s.g.ActiveTransactionCount(),
		GoroutineCount:     runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.ProcessRSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			resp.ProcessCPUPercent = cpu
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// labels returns every distinct label currently carried by some node.
func (s *server) labels(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.g.AllNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	seen := make(map[string]struct{})
	var out []string
	for _, n := range nodes {
		for _, l := range n.Labels {
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// relTypes returns every distinct relationship type present in the
// graph. Every relationship has exactly one start node, so iterating
// each node's outgoing relationships visits every relationship exactly
// once.
func (s *server) relTypes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.g.AllNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	seen := make(map[string]struct{})
	var out []string
	for _, n := range nodes {
		rels, err := s.g.NeighborsOut(r.Context(), n.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, rel := range rels {
			if _, ok := seen[rel.Type]; !ok {
				seen[rel.Type] = struct{}{}
				out = append(out, rel.Type)
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}
