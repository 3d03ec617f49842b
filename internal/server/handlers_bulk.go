package server

import (
	"encoding/json"
	"net/http"

	"github.com/mcpscope/mcpscope/pkg/types"
)

// runBulk executes one bulk operation and returns the full result. Item
// failures are part of the result body, not HTTP errors.
func (s *Server) runBulk(w http.ResponseWriter, r *http.Request) {
	var req types.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := s.engine.RunBulk(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
