package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcpscope/mcpscope/internal/backup"
	"github.com/mcpscope/mcpscope/internal/configstore"
	"github.com/mcpscope/mcpscope/internal/registry"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeBackupFailed   = "BACKUP_FAILED"
	ErrCodeCorruptBackup  = "CORRUPT_BACKUP"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeEngineError maps engine error values onto the API error taxonomy.
func writeEngineError(w http.ResponseWriter, err error) {
	var parseErr *configstore.ParseError
	var backupErr *configstore.BackupError
	switch {
	case errors.Is(err, registry.ErrUnknownClient),
		errors.Is(err, configstore.ErrNotFound),
		errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &parseErr):
		writeErrorWithDetails(w, http.StatusUnprocessableEntity, ErrCodeParseError, err.Error(), map[string]any{
			"scope": string(parseErr.Scope),
			"path":  parseErr.Path,
		})
	case errors.As(err, &backupErr):
		writeError(w, http.StatusConflict, ErrCodeBackupFailed, err.Error())
	case errors.Is(err, backup.ErrCorrupt):
		writeError(w, http.StatusConflict, ErrCodeCorruptBackup, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
