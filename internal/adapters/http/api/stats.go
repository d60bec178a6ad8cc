package api

import "net/http"

// handleStats serves GET /stats with engine statistics for monitoring.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.GetStats(r.Context()))
}
