package httpapi

import "net/http"

func (s *Server) handlePerfOperations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reset") == "1" {
		s.metrics.ResetOperations()
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotOperations())
}
