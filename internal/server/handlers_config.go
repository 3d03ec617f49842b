package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcpscope/mcpscope/internal/configstore"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// listClients returns the registered client descriptors.
func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Clients())
}

// getClient returns one client descriptor.
func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	desc, err := s.engine.Client(chi.URLParam(r, "clientID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// getResolved returns the merged four-scope view for a client.
func (s *Server) getResolved(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.engine.Resolve(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func scopeParam(r *http.Request) (types.Scope, error) {
	raw := chi.URLParam(r, "scope")
	scope, ok := types.ParseScope(raw)
	if !ok {
		return "", fmt.Errorf("invalid scope %q", raw)
	}
	return scope, nil
}

// getScope returns the raw content of one scope file. A missing file is
// an empty scope, not an error.
func (s *Server) getScope(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	clientID := chi.URLParam(r, "clientID")

	cfg, err := s.engine.LoadScope(r.Context(), clientID, scope)
	if err != nil {
		if errors.Is(err, configstore.ErrNotFound) {
			writeJSON(w, http.StatusOK, types.NewConfiguration(scope, ""))
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// putScopeRequest is the body of a scope write.
type putScopeRequest struct {
	Servers map[string]types.ServerEntry `json:"servers"`
	Force   bool                         `json:"force,omitempty"`
}

// putScope replaces the server set of one scope file.
func (s *Server) putScope(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	clientID := chi.URLParam(r, "clientID")

	var req putScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Servers == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "servers is required")
		return
	}
	for name, entry := range req.Servers {
		entry.Name = name
		entry.Scope = ""
		req.Servers[name] = entry
	}

	if err := s.engine.SaveScope(r.Context(), clientID, scope, req.Servers, configstore.SaveOptions{Force: req.Force}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// getStatus reports engine health.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	watching, polling := s.engine.Watching()
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":  len(s.engine.Clients()),
		"watching": watching,
		"polling":  polling,
	})
}
