package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpscope/mcpscope/pkg/types"
)

func descriptors() []types.ClientDescriptor {
	return []types.ClientDescriptor{
		{
			ClientID: "claude-desktop",
			Name:     "Claude Desktop",
			ScopePaths: map[types.Scope]string{
				types.ScopeGlobal: "/etc/claude/config.json",
				types.ScopeUser:   "/home/u/.claude/config.json",
			},
		},
		{
			ClientID: "cursor",
			ScopePaths: map[types.Scope]string{
				types.ScopeProject: "/proj/.cursor/mcp.json",
			},
		},
	}
}

func TestGetAndList(t *testing.T) {
	r, err := New(descriptors())
	require.NoError(t, err)

	d, err := r.Get("cursor")
	require.NoError(t, err)
	assert.Equal(t, "/proj/.cursor/mcp.json", d.ScopePaths[types.ScopeProject])

	_, err = r.Get("zed")
	assert.ErrorIs(t, err, ErrUnknownClient)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "claude-desktop", list[0].ClientID)
	assert.Equal(t, "cursor", list[1].ClientID)
}

func TestOwnerAndPaths(t *testing.T) {
	r, err := New(descriptors())
	require.NoError(t, err)

	owner, ok := r.Owner("/home/u/.claude/config.json")
	require.True(t, ok)
	assert.Equal(t, "claude-desktop", owner.ClientID)
	assert.Equal(t, types.ScopeUser, owner.Scope)

	_, ok = r.Owner("/nowhere.json")
	assert.False(t, ok)

	assert.Len(t, r.Paths(), 3)
}

func TestValidation(t *testing.T) {
	_, err := New([]types.ClientDescriptor{{ClientID: ""}})
	assert.Error(t, err)

	_, err = New([]types.ClientDescriptor{
		{ClientID: "a"},
		{ClientID: "a"},
	})
	assert.Error(t, err)

	_, err = New([]types.ClientDescriptor{{
		ClientID:   "a",
		ScopePaths: map[types.Scope]string{"workspace": "/x.json"},
	}})
	assert.Error(t, err)
}

func TestTildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	r, err := New([]types.ClientDescriptor{{
		ClientID:   "a",
		ScopePaths: map[types.Scope]string{types.ScopeUser: "~/.claude/config.json"},
	}})
	require.NoError(t, err)

	d, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".claude", "config.json"), d.ScopePaths[types.ScopeUser])
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "clients.yaml")
	content := `clients:
  - clientId: claude-desktop
    name: Claude Desktop
    scopePaths:
      user: /home/u/.claude/config.json
  - clientId: cursor
    scopePaths:
      project: /proj/.cursor/mcp.json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, r.List(), 2)

	d, err := r.Get("claude-desktop")
	require.NoError(t, err)
	assert.Equal(t, "Claude Desktop", d.Name)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	tmp := t.TempDir()
	bad := filepath.Join(tmp, "clients.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("clients: [::bad"), 0644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}
