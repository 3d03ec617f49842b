package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// listBackups returns the snapshots for one (client, scope), newest
// first.
func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	backups, err := s.engine.ListBackups(r.Context(), chi.URLParam(r, "clientID"), scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// restoreBackup writes a snapshot back over its scope file.
func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	restored, err := s.engine.RestoreBackup(r.Context(), chi.URLParam(r, "backupID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

// pruneBackups applies the retention policy and reports how many
// snapshots were removed.
func (s *Server) pruneBackups(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.PruneBackups(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
