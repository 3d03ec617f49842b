// Package registry holds the client descriptors handed to the engine by
// the external client-discovery collaborator. It is an explicit
// repository constructed once and passed by reference; nothing in the
// engine reaches for ambient client state.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcpscope/mcpscope/pkg/types"
)

// ErrUnknownClient is wrapped by lookups for missing client IDs.
var ErrUnknownClient = fmt.Errorf("unknown client")

// registryFile is the YAML document the discovery collaborator produces.
type registryFile struct {
	Clients []types.ClientDescriptor `yaml:"clients"`
}

// Registry is an immutable set of client descriptors.
type Registry struct {
	clients map[string]types.ClientDescriptor
	// byPath maps each scope file path back to its (client, scope),
	// which is how watcher events find the resolutions to invalidate.
	byPath map[string]PathOwner
}

// PathOwner names the (client, scope) pair a config path belongs to.
type PathOwner struct {
	ClientID string
	Scope    types.Scope
}

// New builds a Registry from descriptors. Relative and ~-prefixed scope
// paths are expanded; descriptors without an ID or with invalid scopes
// are rejected.
func New(descriptors []types.ClientDescriptor) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]types.ClientDescriptor, len(descriptors)),
		byPath:  make(map[string]PathOwner),
	}
	for _, d := range descriptors {
		if d.ClientID == "" {
			return nil, fmt.Errorf("client descriptor without clientId")
		}
		if _, dup := r.clients[d.ClientID]; dup {
			return nil, fmt.Errorf("duplicate client %q", d.ClientID)
		}
		expanded := types.ClientDescriptor{
			ClientID:   d.ClientID,
			Name:       d.Name,
			ScopePaths: make(map[types.Scope]string, len(d.ScopePaths)),
		}
		for scope, path := range d.ScopePaths {
			if !scope.Valid() {
				return nil, fmt.Errorf("client %q: invalid scope %q", d.ClientID, scope)
			}
			p, err := expandPath(path)
			if err != nil {
				return nil, fmt.Errorf("client %q: %w", d.ClientID, err)
			}
			expanded.ScopePaths[scope] = p
			r.byPath[p] = PathOwner{ClientID: d.ClientID, Scope: scope}
		}
		r.clients[d.ClientID] = expanded
	}
	return r, nil
}

// LoadFile reads a registry from the discovery collaborator's YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client registry %s: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse client registry %s: %w", path, err)
	}
	return New(file.Clients)
}

// Get returns the descriptor for a client ID.
func (r *Registry) Get(clientID string) (types.ClientDescriptor, error) {
	d, ok := r.clients[clientID]
	if !ok {
		return types.ClientDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownClient, clientID)
	}
	return d, nil
}

// List returns all descriptors sorted by client ID.
func (r *Registry) List() []types.ClientDescriptor {
	out := make([]types.ClientDescriptor, 0, len(r.clients))
	for _, d := range r.clients {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Owner maps a scope file path back to its client and scope.
func (r *Registry) Owner(path string) (PathOwner, bool) {
	owner, ok := r.byPath[path]
	return owner, ok
}

// Paths returns every scope file path in the registry, sorted.
func (r *Registry) Paths() []string {
	out := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty scope path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
