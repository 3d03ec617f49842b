// Package backup snapshots configuration files before destructive writes
// and restores or prunes those snapshots.
//
// Layout: <root>/<clientId>/<scope>/<timestamp>.json, where the snapshot
// file is a verbatim copy of the original bytes.
package backup

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"github.com/mcpscope/mcpscope/internal/checksum"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/pkg/types"
)

// timestampLayout is ISO 8601 with colons replaced so the name is a valid
// filename everywhere.
const timestampLayout = "2006-01-02T15-04-05.000Z"

// ErrCorrupt is returned when a snapshot fails validation and is refused.
var ErrCorrupt = errors.New("corrupt backup")

// ErrNotFound is returned when no snapshot matches a backup ID.
var ErrNotFound = errors.New("backup not found")

// Retention is the default pruning policy.
type Retention struct {
	MaxAge   time.Duration
	MaxCount int
}

// DefaultRetention keeps ten snapshots per file for thirty days.
func DefaultRetention() Retention {
	return Retention{MaxAge: 30 * 24 * time.Hour, MaxCount: 10}
}

// Manager creates, lists, restores and prunes snapshots under one root
// directory.
type Manager struct {
	root string
	bus  *event.Bus
	now  func() time.Time
	log  zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager rooted at dir. The bus may be nil.
func NewManager(dir string, bus *event.Bus, opts ...Option) *Manager {
	m := &Manager{
		root: dir,
		bus:  bus,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logging.ForComponent("backup"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the backup root directory.
func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) dirFor(clientID string, scope types.Scope) string {
	return filepath.Join(m.root, clientID, string(scope))
}

// backupID derives a stable ULID from the snapshot time and content hash,
// so listing the same snapshot twice yields the same ID.
func backupID(ts time.Time, contentHash string) string {
	raw, err := hex.DecodeString(contentHash)
	if err != nil || len(raw) < 10 {
		raw = append(raw, make([]byte, 10)...)
	}
	id, err := ulid.New(ulid.Timestamp(ts), bytes.NewReader(raw[:10]))
	if err != nil {
		return fmt.Sprintf("%d-%s", ts.UnixMilli(), contentHash[:8])
	}
	return id.String()
}

// Create snapshots the current content of sourcePath. If the source does
// not exist there is nothing to protect and Create returns (nil, nil).
func (m *Manager) Create(ctx context.Context, clientID string, scope types.Scope, sourcePath string) (*types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup %s: %w", sourcePath, err)
	}

	dir := m.dirFor(clientID, scope)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("backup %s: %w", sourcePath, err)
	}

	// Bump the timestamp until the name is free; two writes inside one
	// millisecond would otherwise collide.
	ts := m.now()
	var path string
	for {
		path = filepath.Join(dir, ts.Format(timestampLayout)+".json")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		ts = ts.Add(time.Millisecond)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("backup %s: %w", sourcePath, err)
	}

	hash := checksum.Bytes(data)
	b := &types.Backup{
		ID:           backupID(ts, hash),
		ClientID:     clientID,
		Scope:        scope,
		OriginalPath: sourcePath,
		BackupPath:   path,
		Timestamp:    ts,
		ContentHash:  hash,
		Size:         int64(len(data)),
	}

	m.log.Debug().Str("client", clientID).Str("scope", string(scope)).Str("backup", path).Msg("snapshot created")
	if m.bus != nil {
		m.bus.Publish(event.Event{Type: event.BackupCreated, Data: event.BackupCreatedData{Backup: *b}})
	}
	return b, nil
}

// List returns the snapshots for one (client, scope) pair, newest first.
func (m *Manager) List(ctx context.Context, clientID string, scope types.Scope) ([]types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := m.dirFor(clientID, scope)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Backup{}, nil
		}
		return nil, fmt.Errorf("list backups %s: %w", dir, err)
	}

	var out []types.Backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ts, err := time.Parse(timestampLayout, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		hash, err := checksum.File(path)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, types.Backup{
			ID:          backupID(ts, hash),
			ClientID:    clientID,
			Scope:       scope,
			BackupPath:  path,
			Timestamp:   ts,
			ContentHash: hash,
			Size:        info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Find locates a snapshot by ID across all clients and scopes.
func (m *Manager) Find(ctx context.Context, id string) (*types.Backup, error) {
	clients, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, client := range clients {
		if !client.IsDir() {
			continue
		}
		for _, scope := range types.AllScopes() {
			backups, err := m.List(ctx, client.Name(), scope)
			if err != nil {
				return nil, err
			}
			for i := range backups {
				if backups[i].ID == id {
					return &backups[i], nil
				}
			}
		}
	}
	return nil, ErrNotFound
}

// Restore validates a snapshot and writes it over targetPath. A snapshot
// that no longer parses as a configuration file is refused and the target
// is left untouched.
func (m *Manager) Restore(ctx context.Context, b types.Backup, targetPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(b.BackupPath)
	if err != nil {
		return fmt.Errorf("restore %s: %w", b.BackupPath, err)
	}
	if err := validateSnapshot(data); err != nil {
		return fmt.Errorf("restore %s: %w", b.BackupPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("restore %s: %w", targetPath, err)
	}
	tmp := targetPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("restore %s: %w", targetPath, err)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("restore %s: %w", targetPath, err)
	}

	m.log.Info().Str("backup", b.BackupPath).Str("target", targetPath).Msg("snapshot restored")
	if m.bus != nil {
		m.bus.Publish(event.Event{Type: event.BackupRestored, Data: event.BackupRestoredData{Backup: b, TargetPath: targetPath}})
	}
	return nil
}

// validateSnapshot checks that the snapshot still parses as a client
// configuration document: a JSON object whose mcpServers key, when
// present, is itself an object.
func validateSnapshot(data []byte) error {
	clean := jsonc.ToJSON(data)
	if !gjson.ValidBytes(clean) {
		return ErrCorrupt
	}
	doc := gjson.ParseBytes(clean)
	if !doc.IsObject() {
		return ErrCorrupt
	}
	if servers := doc.Get("mcpServers"); servers.Exists() && !servers.IsObject() {
		return ErrCorrupt
	}
	return nil
}

// Prune removes snapshots older than maxAge or beyond maxCount per
// (client, scope) pair, always keeping the newest snapshot for each.
// Returns how many files were removed.
func (m *Manager) Prune(ctx context.Context, policy Retention) (int, error) {
	clients, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := m.now().Add(-policy.MaxAge)
	for _, client := range clients {
		if !client.IsDir() {
			continue
		}
		for _, scope := range types.AllScopes() {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			backups, err := m.List(ctx, client.Name(), scope)
			if err != nil {
				return removed, err
			}
			// backups is newest first; index 0 is always kept.
			for i, b := range backups {
				if i == 0 {
					continue
				}
				expired := policy.MaxAge > 0 && b.Timestamp.Before(cutoff)
				overflow := policy.MaxCount > 0 && i >= policy.MaxCount
				if !expired && !overflow {
					continue
				}
				if err := os.Remove(b.BackupPath); err != nil {
					m.log.Warn().Err(err).Str("backup", b.BackupPath).Msg("prune failed")
					continue
				}
				removed++
			}
		}
	}
	return removed, nil
}
