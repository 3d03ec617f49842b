package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscope/mcpscope/internal/engine"
	"github.com/mcpscope/mcpscope/internal/registry"
	"github.com/mcpscope/mcpscope/pkg/types"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.New([]types.ClientDescriptor{
		{
			ClientID: "claude",
			Name:     "Claude Desktop",
			ScopePaths: map[types.Scope]string{
				types.ScopeGlobal: filepath.Join(dir, "claude-global.json"),
				types.ScopeUser:   filepath.Join(dir, "claude-user.json"),
			},
		},
		{
			ClientID: "cursor",
			ScopePaths: map[types.Scope]string{
				types.ScopeUser: filepath.Join(dir, "cursor-user.json"),
			},
		},
	})
	require.NoError(t, err)

	eng, err := engine.New(reg, engine.Config{
		BackupDir:    filepath.Join(dir, "backups"),
		DisableWatch: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return New(DefaultConfig(), eng), dir
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListClients(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/client", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var clients []types.ClientDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clients))
	require.Len(t, clients, 2)
	assert.Equal(t, "claude", clients[0].ClientID)
	assert.Equal(t, "cursor", clients[1].ClientID)
}

func TestGetUnknownClient(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/client/zed", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestPutThenGetScope(t *testing.T) {
	s, _ := newTestServer(t)

	body := putScopeRequest{
		Servers: map[string]types.ServerEntry{
			"fs": {Command: "npx fs-server", Args: []string{"-y"}, Enabled: true},
		},
	}
	rec := doRequest(t, s, http.MethodPut, "/client/claude/scope/user", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/client/claude/scope/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg types.Configuration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "npx fs-server", cfg.Servers["fs"].Command)
	assert.Equal(t, "fs", cfg.Servers["fs"].Name)
}

func TestGetMissingScopeIsEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/client/claude/scope/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg types.Configuration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Empty(t, cfg.Servers)
}

func TestInvalidScopeRejected(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/client/claude/scope/galactic", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
}

func TestResolvedViewWithConflict(t *testing.T) {
	s, dir := newTestServer(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude-global.json"),
		[]byte(`{"mcpServers":{"fs":{"command":"npx fs-server","enabled":true}}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude-user.json"),
		[]byte(`{"mcpServers":{"fs":{"command":"npx fs-server-v2","enabled":true}}}`), 0644))

	rec := doRequest(t, s, http.MethodGet, "/client/claude/resolved", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved types.ResolvedConfiguration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, "npx fs-server-v2", resolved.Servers["fs"].Command)
	assert.Equal(t, types.ScopeUser, resolved.Sources["fs"])
	require.Len(t, resolved.Conflicts, 1)
	assert.Equal(t, "fs", resolved.Conflicts[0].ServerName)
}

func TestParseErrorSurfacesAsUnprocessable(t *testing.T) {
	s, dir := newTestServer(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude-user.json"),
		[]byte(`{"mcpServers": broken`), 0644))

	rec := doRequest(t, s, http.MethodGet, "/client/claude/scope/user", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
	assert.Equal(t, "user", resp.Error.Details["scope"])
}

func TestBackupListAndRestore(t *testing.T) {
	s, _ := newTestServer(t)

	write := func(cmd string) {
		body := putScopeRequest{Servers: map[string]types.ServerEntry{
			"fs": {Command: cmd, Enabled: true},
		}}
		rec := doRequest(t, s, http.MethodPut, "/client/claude/scope/user", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	write("v1")
	write("v2")

	rec := doRequest(t, s, http.MethodGet, "/client/claude/scope/user/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var backups []types.Backup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &backups))
	require.NotEmpty(t, backups)

	rec = doRequest(t, s, http.MethodPost, "/backup/"+backups[0].ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/client/claude/scope/user", nil)
	var cfg types.Configuration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "v1", cfg.Servers["fs"].Command)
}

func TestRestoreUnknownBackup(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/backup/nope/restore", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkEndpoint(t *testing.T) {
	s, dir := newTestServer(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "claude-user.json"),
		[]byte(`{"mcpServers":{"fs":{"command":"npx fs-server","enabled":true}}}`), 0644))

	req := types.BulkRequest{
		Operation: types.BulkSync,
		Source:    "claude",
		Targets:   []string{"cursor"},
		Options:   types.BulkOptions{OverwriteExisting: true},
	}
	rec := doRequest(t, s, http.MethodPost, "/bulk", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result types.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.BulkCompleted, result.State)
	assert.Equal(t, types.BulkSummary{Total: 1, Successful: 1, Failed: 0}, result.Summary)
}

func TestBulkInvalidRequest(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/bulk", types.BulkRequest{Operation: "explode"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, float64(2), status["clients"])
	assert.Equal(t, false, status["watching"])
}

func TestShutdownWithoutStart(t *testing.T) {
	s, _ := newTestServer(t)
	assert.NoError(t, s.Shutdown(context.Background()))
}
