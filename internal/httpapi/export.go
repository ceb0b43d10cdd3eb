package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/antoniostano/tracker/internal/tasks"
)

// handleExport writes the full entity set as CSV (the data file format) or
// as JSON grouped by kind.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "csv":
		var buf bytes.Buffer
		if err := tasks.WriteCSV(&buf, snap); err != nil {
			respondManagerError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="tasks.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	case "json":
		respondJSON(w, http.StatusOK, map[string]any{
			"tasks":    toPayloads(snap.Tasks),
			"epics":    toPayloads(snap.Epics),
			"subtasks": toPayloads(snap.Subtasks),
		})
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "format must be csv or json")
	}
}
