package server

import "net/http"

// listRunners handles `GET /v2/runners`.
func (s *Server) listRunners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runners.Snapshot())
}
