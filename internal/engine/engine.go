// Package engine wires the configuration store, resolver, backup
// manager, watcher and bulk coordinator into one facade. Everything is
// constructed explicitly and injected; the engine owns the lifecycle of
// its parts and nothing else reaches for shared state.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpscope/mcpscope/internal/backup"
	"github.com/mcpscope/mcpscope/internal/config"
	"github.com/mcpscope/mcpscope/internal/configstore"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/internal/registry"
	"github.com/mcpscope/mcpscope/internal/resolver"
	"github.com/mcpscope/mcpscope/internal/syncer"
	"github.com/mcpscope/mcpscope/internal/watcher"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// Config holds engine configuration.
type Config struct {
	// BackupDir is the root for pre-write snapshots. Defaults to
	// .backups under the config directory.
	BackupDir string

	// Debounce is the watcher settle window. Zero keeps the default.
	Debounce time.Duration

	// DisableWatch skips file watching entirely, for one-shot CLI use
	// where nothing consumes change events.
	DisableWatch bool

	// Retention is the backup pruning policy. Zero values keep the
	// defaults.
	Retention backup.Retention
}

func (c *Config) applyDefaults() error {
	if c.BackupDir == "" {
		c.BackupDir = config.GetPaths().BackupPath()
	}
	def := backup.DefaultRetention()
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = def.MaxAge
	}
	if c.Retention.MaxCount == 0 {
		c.Retention.MaxCount = def.MaxCount
	}
	return nil
}

// Engine is the facade over the whole configuration system.
type Engine struct {
	cfg      Config
	bus      *event.Bus
	clients  *registry.Registry
	backups  *backup.Manager
	watcher  *watcher.Watcher
	store    *configstore.Store
	resolver *resolver.Resolver
	syncer   *syncer.Coordinator
	log      zerolog.Logger
}

// New builds an engine over the given client registry. Every scope file
// in the registry is placed under watch unless watching is disabled.
func New(clients *registry.Registry, cfg Config) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	bus := event.NewBus()
	backups := backup.NewManager(cfg.BackupDir, bus)

	var w *watcher.Watcher
	var expects configstore.ExpectationRecorder
	if !cfg.DisableWatch {
		var opts []watcher.Option
		if cfg.Debounce > 0 {
			opts = append(opts, watcher.WithDebounce(cfg.Debounce))
		}
		var err error
		w, err = watcher.New(bus, opts...)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		if err := w.Watch(clients.Paths()...); err != nil {
			w.Stop()
			bus.Close()
			return nil, fmt.Errorf("watch scope files: %w", err)
		}
		expects = w
	}

	store := configstore.NewStore(backups, expects, bus)
	res := resolver.New(store, clients, bus)

	e := &Engine{
		cfg:      cfg,
		bus:      bus,
		clients:  clients,
		backups:  backups,
		watcher:  w,
		store:    store,
		resolver: res,
		syncer:   syncer.New(store, res, clients, bus),
		log:      logging.ForComponent("engine"),
	}
	e.log.Info().Int("clients", len(clients.List())).Bool("watching", w != nil).Msg("engine started")
	return e, nil
}

// Bus exposes the event bus for subscribers such as the HTTP event
// stream.
func (e *Engine) Bus() *event.Bus {
	return e.bus
}

// Clients lists the registered client descriptors.
func (e *Engine) Clients() []types.ClientDescriptor {
	return e.clients.List()
}

// Client returns one descriptor.
func (e *Engine) Client(clientID string) (types.ClientDescriptor, error) {
	return e.clients.Get(clientID)
}

// Watching reports whether file watching is active, and whether it is
// degraded to polling.
func (e *Engine) Watching() (active, polling bool) {
	if e.watcher == nil {
		return false, false
	}
	return true, e.watcher.Polling()
}

// Changes is the stream of external configuration changes. Nil when
// watching is disabled.
func (e *Engine) Changes() <-chan types.ChangeEvent {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Events()
}

// Resolve returns the merged view for one client.
func (e *Engine) Resolve(ctx context.Context, clientID string) (*types.ResolvedConfiguration, error) {
	return e.resolver.Resolve(ctx, clientID)
}

// LoadScope reads one raw scope file for a client.
func (e *Engine) LoadScope(ctx context.Context, clientID string, scope types.Scope) (*types.Configuration, error) {
	path, err := e.scopePath(clientID, scope)
	if err != nil {
		return nil, err
	}
	return e.store.Load(ctx, clientID, scope, path)
}

// SaveScope writes the full server set of one scope file, taking a
// snapshot first.
func (e *Engine) SaveScope(ctx context.Context, clientID string, scope types.Scope, servers map[string]types.ServerEntry, opts configstore.SaveOptions) error {
	path, err := e.scopePath(clientID, scope)
	if err != nil {
		return err
	}
	return e.store.Save(ctx, clientID, scope, path, servers, opts)
}

// ListBackups returns the snapshots for one (client, scope), newest
// first.
func (e *Engine) ListBackups(ctx context.Context, clientID string, scope types.Scope) ([]types.Backup, error) {
	if _, err := e.clients.Get(clientID); err != nil {
		return nil, err
	}
	return e.backups.List(ctx, clientID, scope)
}

// RestoreBackup writes the identified snapshot back over its client's
// scope file and drops the affected resolution.
func (e *Engine) RestoreBackup(ctx context.Context, backupID string) (*types.Backup, error) {
	b, err := e.backups.Find(ctx, backupID)
	if err != nil {
		return nil, err
	}
	target, err := e.scopePath(b.ClientID, b.Scope)
	if err != nil {
		return nil, err
	}
	// The restore write is our own; mask it from the external stream.
	if e.watcher != nil {
		e.watcher.Expect(target, b.ContentHash)
	}
	if err := e.backups.Restore(ctx, *b, target); err != nil {
		return nil, err
	}
	e.resolver.Invalidate(b.ClientID)
	return b, nil
}

// PruneBackups applies the configured retention policy.
func (e *Engine) PruneBackups(ctx context.Context) (int, error) {
	return e.backups.Prune(ctx, e.cfg.Retention)
}

// RunBulk executes a bulk operation.
func (e *Engine) RunBulk(ctx context.Context, req types.BulkRequest) (*types.BulkResult, error) {
	return e.syncer.Execute(ctx, req)
}

func (e *Engine) scopePath(clientID string, scope types.Scope) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope %q", scope)
	}
	desc, err := e.clients.Get(clientID)
	if err != nil {
		return "", err
	}
	path, ok := desc.ScopePaths[scope]
	if !ok {
		return "", fmt.Errorf("client %q has no %s scope path", clientID, scope)
	}
	return path, nil
}

// Close shuts down the watcher, resolver and bus.
func (e *Engine) Close() error {
	var err error
	if e.watcher != nil {
		err = e.watcher.Stop()
	}
	e.resolver.Close()
	if cerr := e.bus.Close(); err == nil {
		err = cerr
	}
	return err
}
