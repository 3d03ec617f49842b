// Package resolver merges the four scope files of one client into a
// single view with priority and conflict metadata.
//
// Resolution is a pure function of the underlying scope snapshots: the
// same file contents always produce the same ResolvedConfiguration,
// including the same conflict list and ordering. Results are cached per
// client and invalidated when the watcher reports an external change to
// any of the client's scope files.
package resolver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mcpscope/mcpscope/internal/configstore"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/internal/registry"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// Loader is the slice of the config store the resolver needs.
type Loader interface {
	Load(ctx context.Context, clientID string, scope types.Scope, path string) (*types.Configuration, error)
}

// Resolver computes and caches merged views.
type Resolver struct {
	store   Loader
	clients *registry.Registry
	bus     *event.Bus
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*types.ResolvedConfiguration
	// version and epoch fence the cache against invalidations that land
	// while a resolve is reading files: a computed view is only stored
	// if neither moved since the read began.
	version map[string]uint64
	epoch   uint64
	unsub   func()
}

// New creates a Resolver. When bus is non-nil the resolver subscribes to
// config change events and drops affected cache entries.
func New(store Loader, clients *registry.Registry, bus *event.Bus) *Resolver {
	r := &Resolver{
		store:   store,
		clients: clients,
		bus:     bus,
		log:     logging.ForComponent("resolver"),
		cache:   make(map[string]*types.ResolvedConfiguration),
		version: make(map[string]uint64),
	}
	if bus != nil {
		invalidatePath := func(path string) {
			owner, ok := clients.Owner(path)
			if !ok {
				return
			}
			r.Invalidate(owner.ClientID)
			bus.Publish(event.Event{
				Type: event.ResolutionInvalidated,
				Data: event.ResolutionInvalidatedData{ClientID: owner.ClientID, Path: path},
			})
		}
		unsubChanged := bus.Subscribe(event.ConfigChanged, func(e event.Event) {
			if data, ok := e.Data.(event.ConfigChangedData); ok {
				invalidatePath(data.Change.Path)
			}
		})
		// Self-writes are suppressed by the watcher, so saves invalidate
		// through their own event.
		unsubSaved := bus.Subscribe(event.ConfigSaved, func(e event.Event) {
			if data, ok := e.Data.(event.ConfigSavedData); ok {
				invalidatePath(data.Path)
			}
		})
		r.unsub = func() {
			unsubChanged()
			unsubSaved()
		}
	}
	return r
}

// Close detaches the resolver from the event bus.
func (r *Resolver) Close() {
	if r.unsub != nil {
		r.unsub()
	}
}

// Invalidate drops the cached view for one client. A resolve in flight
// for that client will not repopulate the cache with its now-stale view.
func (r *Resolver) Invalidate(clientID string) {
	r.mu.Lock()
	delete(r.cache, clientID)
	r.version[clientID]++
	r.mu.Unlock()
	r.log.Debug().Str("client", clientID).Msg("resolution invalidated")
}

// InvalidateAll drops every cached view.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]*types.ResolvedConfiguration)
	r.epoch++
	r.mu.Unlock()
}

// Resolve returns the merged view for a client. The returned value is
// shared with the cache and must not be mutated by callers.
//
// A missing scope file contributes an empty scope. A scope file that
// exists but fails to parse is excluded from the merge and reported in
// Metadata.ParseFailures; the remaining scopes still resolve. Other I/O
// failures abort resolution.
func (r *Resolver) Resolve(ctx context.Context, clientID string) (*types.ResolvedConfiguration, error) {
	r.mu.RLock()
	if cached, ok := r.cache[clientID]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	version := r.version[clientID]
	epoch := r.epoch
	r.mu.RUnlock()

	desc, err := r.clients.Get(clientID)
	if err != nil {
		return nil, err
	}

	resolved, err := r.resolve(ctx, desc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// An invalidation during the file reads means this view may already
	// be stale; return it to the caller but do not cache it.
	if r.version[clientID] == version && r.epoch == epoch {
		r.cache[clientID] = resolved
	}
	r.mu.Unlock()
	return resolved, nil
}

type candidate struct {
	scope types.Scope
	entry types.ServerEntry
}

func (r *Resolver) resolve(ctx context.Context, desc types.ClientDescriptor) (*types.ResolvedConfiguration, error) {
	out := &types.ResolvedConfiguration{
		Servers:   make(map[string]types.ServerEntry),
		Sources:   make(map[string]types.Scope),
		Conflicts: []types.ScopeConflict{},
		Metadata:  types.ResolvedMetadata{ClientID: desc.ClientID},
	}

	// Candidates per server name, accumulated in ascending scope
	// priority so the last appended candidate is always the winner.
	byName := make(map[string][]candidate)

	for _, scope := range types.AllScopes() {
		path, ok := desc.ScopePaths[scope]
		if !ok {
			continue
		}
		cfg, err := r.store.Load(ctx, desc.ClientID, scope, path)
		if err != nil {
			if errors.Is(err, configstore.ErrNotFound) {
				continue
			}
			var perr *configstore.ParseError
			if errors.As(err, &perr) {
				out.Metadata.ParseFailures = append(out.Metadata.ParseFailures, types.ParseFailure{
					Scope:   perr.Scope,
					Path:    perr.Path,
					Message: perr.Err.Error(),
				})
				continue
			}
			return nil, err
		}
		out.Metadata.Scopes = append(out.Metadata.Scopes, scope)
		for name, entry := range cfg.Servers {
			byName[name] = append(byName[name], candidate{scope: scope, entry: entry.Clone()})
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		candidates := byName[name]
		winner := candidates[len(candidates)-1]

		active := winner.entry.Clone()
		active.Scope = winner.scope
		out.Servers[name] = active
		out.Sources[name] = winner.scope

		if conflict, ok := detectConflict(name, candidates, active); ok {
			out.Conflicts = append(out.Conflicts, conflict)
		}
	}

	r.log.Debug().
		Str("client", desc.ClientID).
		Int("servers", len(out.Servers)).
		Int("conflicts", len(out.Conflicts)).
		Msg("resolved")
	return out, nil
}

// detectConflict reports a conflict when at least two scopes define the
// name with differing content. Identical definitions in several scopes
// are shadowing, not conflict.
func detectConflict(name string, candidates []candidate, active types.ServerEntry) (types.ScopeConflict, bool) {
	if len(candidates) < 2 {
		return types.ScopeConflict{}, false
	}
	differing := false
	for _, c := range candidates[1:] {
		if !c.entry.Equal(candidates[0].entry) {
			differing = true
			break
		}
	}
	if !differing {
		return types.ScopeConflict{}, false
	}

	conflict := types.ScopeConflict{
		ServerName:  name,
		Candidates:  make([]types.ConflictCandidate, 0, len(candidates)),
		ActiveEntry: active,
	}
	// Highest priority first, matching the order the winner was chosen.
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		entry := c.entry.Clone()
		entry.Scope = c.scope
		conflict.Candidates = append(conflict.Candidates, types.ConflictCandidate{
			Scope:    c.scope,
			Entry:    entry,
			Priority: c.scope.Priority(),
		})
	}
	return conflict, true
}
