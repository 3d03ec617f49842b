// Package syncer orchestrates bulk operations across many clients,
// built on the config store, backup manager, and resolver.
//
// Each (target, server) pair is processed independently and atomically:
// its own backup, its own write. A failing pair never prevents the
// remaining pairs from being processed, and already-applied pairs are
// never rolled back when a later pair fails. That isolation is policy,
// not accident: partial results are reported in the summary.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mcpscope/mcpscope/internal/configstore"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/internal/registry"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// Store is the slice of the config store the coordinator needs.
type Store interface {
	Load(ctx context.Context, clientID string, scope types.Scope, path string) (*types.Configuration, error)
	Save(ctx context.Context, clientID string, scope types.Scope, path string, servers map[string]types.ServerEntry, opts configstore.SaveOptions) error
}

// Resolver supplies merged source views for sync and copy.
type Resolver interface {
	Resolve(ctx context.Context, clientID string) (*types.ResolvedConfiguration, error)
}

// Coordinator executes bulk operations.
type Coordinator struct {
	store    Store
	resolver Resolver
	clients  *registry.Registry
	bus      *event.Bus
	log      zerolog.Logger
}

// New creates a Coordinator. bus may be nil.
func New(store Store, res Resolver, clients *registry.Registry, bus *event.Bus) *Coordinator {
	return &Coordinator{
		store:    store,
		resolver: res,
		clients:  clients,
		bus:      bus,
		log:      logging.ForComponent("syncer"),
	}
}

// Execute runs one bulk operation. Item failures never surface as an
// error from Execute; they are aggregated into the result summary. An
// error return means the request itself was unusable (invalid shape,
// unknown source client).
//
// Distinct target files do not share a write lock, so targets are
// processed in parallel; within one target items run sequentially in
// server-name order. Cancellation is cooperative: the context is checked
// between items only, and an in-flight write is never interrupted. When
// cancelled, the result state is aborted and the summary covers only the
// processed pairs.
func (c *Coordinator) Execute(ctx context.Context, req types.BulkRequest) (*types.BulkResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	targetScope := req.Options.TargetScope
	if targetScope == "" {
		targetScope = types.ScopeUser
	}

	var source map[string]types.ServerEntry
	switch req.Operation {
	case types.BulkSync, types.BulkCopy:
		resolved, err := c.resolver.Resolve(ctx, req.Source)
		if err != nil {
			return nil, fmt.Errorf("resolve source %s: %w", req.Source, err)
		}
		source = resolved.Servers
	}

	names := c.serverNames(req, source)

	result := &types.BulkResult{
		ID:        ulid.Make().String(),
		Operation: req.Operation,
		State:     types.BulkRunning,
	}
	c.log.Info().
		Str("op", string(req.Operation)).
		Str("id", result.ID).
		Int("targets", len(req.Targets)).
		Int("servers", len(names)).
		Msg("bulk operation started")
	if c.bus != nil {
		c.bus.Publish(event.Event{Type: event.BulkStarted, Data: event.BulkStartedData{ID: result.ID, Operation: req.Operation}})
	}

	var (
		mu       sync.Mutex
		byTarget = make(map[string][]types.BulkItemResult, len(req.Targets))
		aborted  bool
	)

	var g errgroup.Group
	for _, target := range req.Targets {
		target := target
		g.Go(func() error {
			items, cancelled := c.runTarget(ctx, req, target, targetScope, names, source)
			mu.Lock()
			byTarget[target] = items
			aborted = aborted || cancelled
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, target := range req.Targets {
		result.Results = append(result.Results, byTarget[target]...)
	}
	for _, item := range result.Results {
		result.Summary.Total++
		if item.Success {
			result.Summary.Successful++
		} else {
			result.Summary.Failed++
		}
	}
	if aborted {
		result.State = types.BulkAborted
	} else {
		result.State = types.BulkCompleted
	}

	c.log.Info().
		Str("id", result.ID).
		Str("state", string(result.State)).
		Int("total", result.Summary.Total).
		Int("failed", result.Summary.Failed).
		Msg("bulk operation finished")
	if c.bus != nil {
		c.bus.Publish(event.Event{Type: event.BulkCompleted, Data: event.BulkCompletedData{Result: *result}})
	}
	return result, nil
}

// serverNames fixes the per-target item order up front.
func (c *Coordinator) serverNames(req types.BulkRequest, source map[string]types.ServerEntry) []string {
	var names []string
	if req.Operation == types.BulkSync && len(req.Servers) == 0 {
		for name := range source {
			names = append(names, name)
		}
	} else {
		names = append(names, req.Servers...)
	}
	sort.Strings(names)
	return names
}

// runTarget processes every item for one target sequentially. Returns the
// item results and whether processing stopped early due to cancellation.
func (c *Coordinator) runTarget(ctx context.Context, req types.BulkRequest, target string, scope types.Scope, names []string, source map[string]types.ServerEntry) ([]types.BulkItemResult, bool) {
	desc, err := c.clients.Get(target)
	if err != nil {
		return failAll(target, names, err), false
	}
	path, ok := desc.ScopePaths[scope]
	if !ok {
		return failAll(target, names, fmt.Errorf("no %s scope path configured", scope)), false
	}

	var items []types.BulkItemResult
	for _, name := range names {
		if ctx.Err() != nil {
			return items, true
		}
		item := types.BulkItemResult{Target: target, Server: name, Success: true}
		if err := c.applyItem(ctx, req, desc.ClientID, scope, path, name, source); err != nil {
			item.Success = false
			item.Error = err.Error()
			c.log.Warn().Str("target", target).Str("server", name).Err(err).Msg("bulk item failed")
		}
		items = append(items, item)
	}
	return items, false
}

func failAll(target string, names []string, err error) []types.BulkItemResult {
	items := make([]types.BulkItemResult, 0, len(names))
	for _, name := range names {
		items = append(items, types.BulkItemResult{Target: target, Server: name, Error: err.Error()})
	}
	return items
}

// applyItem performs one (target, server) pair.
func (c *Coordinator) applyItem(ctx context.Context, req types.BulkRequest, clientID string, scope types.Scope, path string, name string, source map[string]types.ServerEntry) error {
	switch req.Operation {
	case types.BulkTest:
		return c.testItem(ctx, clientID, scope, path, name)
	case types.BulkRemove:
		return c.removeItem(ctx, clientID, scope, path, name, req.Options)
	case types.BulkSync, types.BulkCopy:
		entry, ok := source[name]
		if !ok {
			return fmt.Errorf("server %q not present in source", name)
		}
		return c.writeItem(ctx, clientID, scope, path, entry, req.Options)
	}
	return fmt.Errorf("unknown bulk operation %q", req.Operation)
}

// testItem verifies the target scope file parses and defines the server.
// It never writes.
func (c *Coordinator) testItem(ctx context.Context, clientID string, scope types.Scope, path string, name string) error {
	cfg, err := c.store.Load(ctx, clientID, scope, path)
	if err != nil {
		if errorsIsNotFound(err) {
			return fmt.Errorf("server %q not configured (no %s scope file)", name, scope)
		}
		return err
	}
	if _, ok := cfg.Servers[name]; !ok {
		return fmt.Errorf("server %q not configured in %s scope", name, scope)
	}
	return nil
}

func (c *Coordinator) removeItem(ctx context.Context, clientID string, scope types.Scope, path string, name string, opts types.BulkOptions) error {
	cfg, err := c.store.Load(ctx, clientID, scope, path)
	if err != nil {
		if errorsIsNotFound(err) {
			// Nothing to remove.
			return nil
		}
		return err
	}
	if _, ok := cfg.Servers[name]; !ok {
		return nil
	}
	delete(cfg.Servers, name)
	return c.store.Save(ctx, clientID, scope, path, cfg.Servers, configstore.SaveOptions{Force: opts.Force})
}

func (c *Coordinator) writeItem(ctx context.Context, clientID string, scope types.Scope, path string, entry types.ServerEntry, opts types.BulkOptions) error {
	cfg, err := c.store.Load(ctx, clientID, scope, path)
	if err != nil {
		if !errorsIsNotFound(err) {
			return err
		}
		cfg = types.NewConfiguration(scope, path)
	}

	incoming := entry.Clone()
	incoming.Scope = ""

	if existing, ok := cfg.Servers[entry.Name]; ok {
		if existing.Equal(incoming) {
			// Already in the desired state.
			return nil
		}
		if !opts.OverwriteExisting {
			// Differing entry left alone by request; not a failure.
			return nil
		}
	}

	cfg.Servers[entry.Name] = incoming
	return c.store.Save(ctx, clientID, scope, path, cfg.Servers, configstore.SaveOptions{Force: opts.Force})
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, configstore.ErrNotFound)
}
