package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/errwatch/errwatch/internal/cluster"
)

// SetCluster puts the server in console mode: /api/cluster/* routes fan
// queries out to the configured data nodes.
func (s *Server) SetCluster(agg *cluster.Aggregator) {
	s.clusterAgg = agg
}

func (s *Server) handleClusterReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topn := 0
	if raw := r.URL.Query().Get("topn"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			topn = parsed
		}
	}

	rep, err := s.clusterAgg.Report(cluster.QueryParams{
		RawQuery: r.URL.RawQuery,
		Auth:     r.Header.Get("Authorization"),
		TopN:     topn,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func (s *Server) handleClusterStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.clusterAgg.Stats(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}
