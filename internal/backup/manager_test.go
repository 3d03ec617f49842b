package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscope/mcpscope/internal/checksum"
	"github.com/mcpscope/mcpscope/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCreateAndList(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")
	writeFile(t, src, `{"mcpServers":{"fs":{"command":"npx fs-server","enabled":true}}}`)

	m := NewManager(filepath.Join(tmp, ".backups"), nil)

	b, err := m.Create(context.Background(), "claude", types.ScopeUser, src)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "claude", b.ClientID)
	assert.Equal(t, types.ScopeUser, b.Scope)
	assert.FileExists(t, b.BackupPath)

	hash, err := checksum.File(b.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, b.ContentHash, hash)

	list, err := m.List(context.Background(), "claude", types.ScopeUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID, "listed ID must match the ID returned at create time")
}

func TestCreateMissingSourceIsNoop(t *testing.T) {
	tmp := t.TempDir()
	m := NewManager(filepath.Join(tmp, ".backups"), nil)

	b, err := m.Create(context.Background(), "claude", types.ScopeUser, filepath.Join(tmp, "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, b)

	list, err := m.List(context.Background(), "claude", types.ScopeUser)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListNewestFirst(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	m := NewManager(filepath.Join(tmp, ".backups"), nil, WithClock(func() time.Time { return now }))

	writeFile(t, src, `{"mcpServers":{}}`)
	_, err := m.Create(context.Background(), "c", types.ScopeGlobal, src)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	writeFile(t, src, `{"mcpServers":{"fs":{"command":"x","enabled":true}}}`)
	second, err := m.Create(context.Background(), "c", types.ScopeGlobal, src)
	require.NoError(t, err)

	list, err := m.List(context.Background(), "c", types.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].Timestamp.After(list[1].Timestamp))
}

func TestRestoreRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")
	original := `{"mcpServers":{"fs":{"command":"npx fs-server","enabled":true}}}`
	writeFile(t, src, original)

	m := NewManager(filepath.Join(tmp, ".backups"), nil)
	b, err := m.Create(context.Background(), "c", types.ScopeUser, src)
	require.NoError(t, err)

	// Clobber the original, then restore.
	writeFile(t, src, `{"mcpServers":{}}`)
	require.NoError(t, m.Restore(context.Background(), *b, src))

	restored, err := checksum.File(src)
	require.NoError(t, err)
	assert.Equal(t, b.ContentHash, restored)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")
	writeFile(t, src, `{"mcpServers":{}}`)

	m := NewManager(filepath.Join(tmp, ".backups"), nil)
	b, err := m.Create(context.Background(), "c", types.ScopeUser, src)
	require.NoError(t, err)

	// Corrupt the snapshot on disk.
	require.NoError(t, os.WriteFile(b.BackupPath, []byte(`{"mcpServers": [broken`), 0644))

	original := `{"mcpServers":{"keep":{"command":"x","enabled":true}}}`
	writeFile(t, src, original)

	err = m.Restore(context.Background(), *b, src)
	require.ErrorIs(t, err, ErrCorrupt)

	// Target untouched.
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestFind(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")
	writeFile(t, src, `{"mcpServers":{}}`)

	m := NewManager(filepath.Join(tmp, ".backups"), nil)
	b, err := m.Create(context.Background(), "cursor", types.ScopeProject, src)
	require.NoError(t, err)

	found, err := m.Find(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.BackupPath, found.BackupPath)

	_, err = m.Find(context.Background(), "01J00000000000000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneByCountKeepsNewest(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	m := NewManager(filepath.Join(tmp, ".backups"), nil, WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		writeFile(t, src, `{"mcpServers":{}}`)
		_, err := m.Create(context.Background(), "c", types.ScopeUser, src)
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	removed, err := m.Prune(context.Background(), Retention{MaxCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err := m.List(context.Background(), "c", types.ScopeUser)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPruneByAgeKeepsAtLeastOne(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "config.json")

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created
	m := NewManager(filepath.Join(tmp, ".backups"), nil, WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		writeFile(t, src, `{"mcpServers":{}}`)
		_, err := m.Create(context.Background(), "c", types.ScopeUser, src)
		require.NoError(t, err)
		now = now.Add(time.Hour)
	}

	// Far in the future: every snapshot is past MaxAge, but the newest
	// must survive.
	now = created.Add(365 * 24 * time.Hour)
	removed, err := m.Prune(context.Background(), Retention{MaxAge: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err := m.List(context.Background(), "c", types.ScopeUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
