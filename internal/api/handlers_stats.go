package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleBlockStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orchestrator.Store().Stats(r.Context())
	if err != nil {
		jsonError(w, "failed to read stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":       stats,
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
