package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscope/mcpscope/internal/checksum"
	"github.com/mcpscope/mcpscope/pkg/types"
)

type recordedExpectation struct {
	path string
	hash string
}

type fakeExpects struct {
	mu       sync.Mutex
	recorded []recordedExpectation
}

func (f *fakeExpects) Expect(path, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, recordedExpectation{path: path, hash: hash})
}

type fakeBackups struct {
	calls int
	err   error
}

func (f *fakeBackups) Create(ctx context.Context, clientID string, scope types.Scope, sourcePath string) (*types.Backup, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Backup{ClientID: clientID, Scope: scope, OriginalPath: sourcePath}, nil
}

func testServers() map[string]types.ServerEntry {
	return map[string]types.ServerEntry{
		"filesystem": {
			Name:    "filesystem",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
			Env:     map[string]string{"LOG": "debug"},
			Enabled: true,
		},
		"fetch": {
			Name:    "fetch",
			Command: "uvx",
			Args:    []string{"mcp-server-fetch"},
			Enabled: false,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "claude", "config.json")
	store := NewStore(&fakeBackups{}, nil, nil)

	want := testServers()
	require.NoError(t, store.Save(context.Background(), "claude", types.ScopeUser, path, want, SaveOptions{}))

	cfg, err := store.Load(context.Background(), "claude", types.ScopeUser, path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	for name, entry := range want {
		got := cfg.Servers[name]
		entry.Scope = types.ScopeUser
		assert.True(t, entry.Equal(got), "entry %s must survive the round trip", name)
		assert.Equal(t, types.ScopeUser, got.Scope)
	}
	assert.Equal(t, types.ScopeUser, cfg.Metadata.Scope)
	assert.False(t, cfg.Metadata.LastModified.IsZero())
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(nil, nil, nil)
	_, err := store.Load(context.Background(), "c", types.ScopeUser, filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMalformedFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers": [this is not json`), 0644))

	store := NewStore(nil, nil, nil)
	_, err := store.Load(context.Background(), "claude", types.ScopeLocal, path)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ScopeLocal, perr.Scope)
	assert.Equal(t, path, perr.Path)
	assert.Equal(t, "claude", perr.ClientID)
}

func TestLoadJSONCAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	content := `{
		// user servers
		"mcpServers": {
			"fs": {"command": "npx fs-server"},
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store := NewStore(nil, nil, nil)
	cfg, err := store.Load(context.Background(), "c", types.ScopeUser, path)
	require.NoError(t, err)
	entry := cfg.Servers["fs"]
	assert.Equal(t, "npx fs-server", entry.Command)
	assert.True(t, entry.Enabled, "enabled defaults to true when omitted")
}

func TestLoadNoServersKey(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme": "dark"}`), 0644))

	store := NewStore(nil, nil, nil)
	cfg, err := store.Load(context.Background(), "c", types.ScopeUser, path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)
}

func TestSavePreservesForeignKeys(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark","mcpServers":{"old":{"command":"x","enabled":true}}}`), 0644))

	store := NewStore(&fakeBackups{}, nil, nil)
	require.NoError(t, store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"theme"`)
	assert.NotContains(t, string(data), `"old"`)
}

func TestSaveTakesBackupFirst(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	backups := &fakeBackups{}
	store := NewStore(backups, nil, nil)

	require.NoError(t, store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{}))
	assert.Equal(t, 1, backups.calls)
}

func TestBackupFailureAbortsSave(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcpServers":{}}`), 0644))

	store := NewStore(&fakeBackups{err: errors.New("disk full")}, nil, nil)
	err := store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{})

	var berr *BackupError
	require.ErrorAs(t, err, &berr)

	// File untouched.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `{"mcpServers":{}}`, string(data))
}

func TestForceBypassesBackupFailure(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	store := NewStore(&fakeBackups{err: errors.New("disk full")}, nil, nil)

	require.NoError(t, store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{Force: true}))
	assert.FileExists(t, path)
}

func TestSaveRegistersExpectedHashBeforeWrite(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	expects := &fakeExpects{}
	store := NewStore(&fakeBackups{}, expects, nil)

	require.NoError(t, store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{}))

	require.Len(t, expects.recorded, 1)
	assert.Equal(t, path, expects.recorded[0].path)

	onDisk, err := checksum.File(path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, expects.recorded[0].hash, "registered hash must match the bytes that landed on disk")
}

func TestSaveCancelledContext(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	store := NewStore(&fakeBackups{}, nil, nil)

	// Occupy the write lock, then try a save with a cancelled context.
	lock := store.lockFor(path)
	lock <- struct{}{}
	defer func() { <-lock }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Save(ctx, "c", types.ScopeUser, path, testServers(), SaveOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentSavesSerialize(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")
	store := NewStore(&fakeBackups{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Save(context.Background(), "c", types.ScopeUser, path, testServers(), SaveOptions{})
		}()
	}
	wg.Wait()

	cfg, err := store.Load(context.Background(), "c", types.ScopeUser, path)
	require.NoError(t, err)
	assert.Len(t, cfg.Servers, 2)
}
