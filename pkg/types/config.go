package types

import "time"

// ServerEntry is a single MCP server definition inside one scope file.
// Name is unique within a scope file; the same name may appear in several
// scopes, which is what resolution arbitrates.
type ServerEntry struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Enabled bool              `json:"enabled"`
	Scope   Scope             `json:"scope,omitempty"`
}

// Equal reports whether two entries have identical content.
// The Scope field is resolution metadata and is ignored, so the same
// definition appearing in two scopes does not count as a conflict.
func (e ServerEntry) Equal(o ServerEntry) bool {
	if e.Name != o.Name || e.Command != o.Command || e.Cwd != o.Cwd || e.Enabled != o.Enabled {
		return false
	}
	if len(e.Args) != len(o.Args) {
		return false
	}
	for i, a := range e.Args {
		if o.Args[i] != a {
			return false
		}
	}
	if len(e.Env) != len(o.Env) {
		return false
	}
	for k, v := range e.Env {
		ov, ok := o.Env[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the entry.
func (e ServerEntry) Clone() ServerEntry {
	c := e
	if e.Args != nil {
		c.Args = append([]string(nil), e.Args...)
	}
	if e.Env != nil {
		c.Env = make(map[string]string, len(e.Env))
		for k, v := range e.Env {
			c.Env[k] = v
		}
	}
	return c
}

// Configuration is the typed content of one (client, scope) file.
type Configuration struct {
	Servers  map[string]ServerEntry `json:"servers"`
	Metadata ConfigMetadata         `json:"metadata"`
}

// ConfigMetadata describes where a Configuration came from.
type ConfigMetadata struct {
	Scope        Scope     `json:"scope"`
	Path         string    `json:"path,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// NewConfiguration returns an empty configuration for a scope.
func NewConfiguration(scope Scope, path string) *Configuration {
	return &Configuration{
		Servers:  make(map[string]ServerEntry),
		Metadata: ConfigMetadata{Scope: scope, Path: path},
	}
}

// Clone returns a deep copy so resolution can never mutate the source.
func (c *Configuration) Clone() *Configuration {
	out := &Configuration{
		Servers:  make(map[string]ServerEntry, len(c.Servers)),
		Metadata: c.Metadata,
	}
	for name, e := range c.Servers {
		out.Servers[name] = e.Clone()
	}
	return out
}

// ClientDescriptor is what the external client-discovery collaborator
// hands the engine: an identifier plus the on-disk path of each scope file.
type ClientDescriptor struct {
	ClientID   string           `yaml:"clientId" json:"clientId"`
	Name       string           `yaml:"name,omitempty" json:"name,omitempty"`
	ScopePaths map[Scope]string `yaml:"scopePaths" json:"scopePaths"`
}
