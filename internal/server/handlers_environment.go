package server

import "net/http"

// EnvironmentInfo is the JSON-tagged wire shape of a configured
// environment; config.EnvironmentConfig only carries yaml tags since
// it is never otherwise serialized.
type EnvironmentInfo struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Path          string `json:"path,omitempty"`
	TemplatePath  string `json:"templatePath,omitempty"`
	StartupScript string `json:"startupScript,omitempty"`
}

// listEnvironments handles `GET /v2/environments`.
func (s *Server) listEnvironments(w http.ResponseWriter, r *http.Request) {
	infos := make([]EnvironmentInfo, 0, len(s.cfg.Environments))
	for _, e := range s.cfg.Environments {
		infos = append(infos, EnvironmentInfo{
			Name:          e.Name,
			Type:          e.Type,
			Path:          e.Path,
			TemplatePath:  e.TemplatePath,
			StartupScript: e.StartupScript,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}
