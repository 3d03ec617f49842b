// Package configstore reads and writes a single (client, scope)
// configuration file as a typed structure. It is the only component that
// touches the raw bytes of client config files.
//
// On-disk format: {"mcpServers": {"<name>": {command, args, env, cwd,
// enabled}}}. Files may contain JSONC comments on read; a save rewrites
// the document and preserves foreign top-level keys, but not comments.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"

	"github.com/mcpscope/mcpscope/internal/checksum"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// ErrNotFound is returned by Load when the scope file does not exist.
// Callers that treat a missing file as an empty scope check for it with
// errors.Is.
var ErrNotFound = errors.New("configuration file not found")

// ParseError reports a scope file that exists but is malformed. It names
// the offending scope and path so resolution can surface exactly what
// failed.
type ParseError struct {
	ClientID string
	Scope    types.Scope
	Path     string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s scope for %s (%s): %v", e.Scope, e.ClientID, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BackupError aborts a save whose pre-write snapshot failed. It is fatal
// to the save unless the caller forces the write.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("save aborted, backup failed for %s: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// BackupCreator snapshots a file before the store overwrites it.
type BackupCreator interface {
	Create(ctx context.Context, clientID string, scope types.Scope, sourcePath string) (*types.Backup, error)
}

// ExpectationRecorder is told the content hash an imminent self-write
// will produce, before the write lands, so the watcher can classify the
// resulting OS event as internal.
type ExpectationRecorder interface {
	Expect(path, hash string)
}

// SaveOptions tunes one save.
type SaveOptions struct {
	// Force acknowledges a failed backup and writes anyway.
	Force bool
}

// wireEntry is the on-disk shape of one server entry. The entry name is
// the map key, never a field.
type wireEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
}

// Store performs typed reads and serialized writes of scope files.
type Store struct {
	backups BackupCreator
	expects ExpectationRecorder
	bus     *event.Bus
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewStore creates a Store. expects and bus may be nil (tests, one-shot
// CLI use).
func NewStore(backups BackupCreator, expects ExpectationRecorder, bus *event.Bus) *Store {
	return &Store{
		backups: backups,
		expects: expects,
		bus:     bus,
		log:     logging.ForComponent("configstore"),
		locks:   make(map[string]chan struct{}),
	}
}

// lockFor returns the per-path write lock. A buffered channel of one is
// an asynchronous mutex: a save queued behind another waits here without
// blocking reads.
func (s *Store) lockFor(path string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[path] = lock
	}
	return lock
}

// Load reads one scope file. A missing file returns ErrNotFound; a file
// that exists but does not parse returns a *ParseError.
func (s *Store) Load(ctx context.Context, clientID string, scope types.Scope, path string) (*types.Configuration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	clean := jsonc.ToJSON(data)
	if !gjson.ValidBytes(clean) {
		return nil, &ParseError{ClientID: clientID, Scope: scope, Path: path, Err: errors.New("invalid JSON")}
	}
	doc := gjson.ParseBytes(clean)
	if !doc.IsObject() {
		return nil, &ParseError{ClientID: clientID, Scope: scope, Path: path, Err: errors.New("document is not an object")}
	}

	cfg := types.NewConfiguration(scope, path)
	if info, err := os.Stat(path); err == nil {
		cfg.Metadata.LastModified = info.ModTime().UTC()
	}

	servers := doc.Get("mcpServers")
	if !servers.Exists() {
		return cfg, nil
	}
	if !servers.IsObject() {
		return nil, &ParseError{ClientID: clientID, Scope: scope, Path: path, Err: errors.New("mcpServers is not an object")}
	}

	var wire map[string]wireEntry
	if err := json.Unmarshal([]byte(servers.Raw), &wire); err != nil {
		return nil, &ParseError{ClientID: clientID, Scope: scope, Path: path, Err: err}
	}

	for name, we := range wire {
		enabled := we.Enabled == nil || *we.Enabled
		cfg.Servers[name] = types.ServerEntry{
			Name:    name,
			Command: we.Command,
			Args:    we.Args,
			Env:     we.Env,
			Cwd:     we.Cwd,
			Enabled: enabled,
			Scope:   scope,
		}
	}
	return cfg, nil
}

// Save writes the server set for one scope file. The sequence is fixed:
// acquire the per-path lock, snapshot the current file, register the
// expected content hash with the watcher, then write atomically via
// temp-file-and-rename. Foreign top-level keys in the existing file are
// preserved untouched.
func (s *Store) Save(ctx context.Context, clientID string, scope types.Scope, path string, servers map[string]types.ServerEntry, opts SaveOptions) error {
	lock := s.lockFor(path)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	if s.backups != nil {
		if _, err := s.backups.Create(ctx, clientID, scope, path); err != nil {
			if !opts.Force {
				return &BackupError{Path: path, Err: err}
			}
			s.log.Warn().Err(err).Str("path", path).Msg("backup failed, forced save proceeding")
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		raw = []byte("{}")
	}
	clean := jsonc.ToJSON(raw)
	if !gjson.ValidBytes(clean) {
		// The file is being overwritten anyway; a malformed original is
		// preserved in the snapshot taken above.
		clean = []byte("{}")
	}

	wire := make(map[string]wireEntry, len(servers))
	for name, e := range servers {
		enabled := e.Enabled
		wire[name] = wireEntry{
			Command: e.Command,
			Args:    e.Args,
			Env:     e.Env,
			Cwd:     e.Cwd,
			Enabled: &enabled,
		}
	}

	updated, err := sjson.SetBytes(clean, "mcpServers", wire)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	final, err := indent(updated)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	// The expectation must be registered before the rename can produce
	// an OS event, or the watcher would report our own write as external.
	if s.expects != nil {
		s.expects.Expect(path, checksum.Bytes(final))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, final, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.log.Debug().Str("client", clientID).Str("scope", string(scope)).Str("path", path).Int("servers", len(servers)).Msg("configuration saved")
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.ConfigSaved, Data: event.ConfigSavedData{ClientID: clientID, Scope: scope, Path: path}})
	}
	return nil
}

func indent(data []byte) ([]byte, error) {
	var out json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	var buf []byte
	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}
