package event

import (
	"github.com/mcpscope/mcpscope/pkg/types"
)

// EventType represents the type of event.
type EventType string

const (
	ConfigChanged         EventType = "config.changed"
	ConfigSaved           EventType = "config.saved"
	BackupCreated         EventType = "backup.created"
	BackupRestored        EventType = "backup.restored"
	ResolutionInvalidated EventType = "resolution.invalidated"
	BulkStarted           EventType = "bulk.started"
	BulkCompleted         EventType = "bulk.completed"
)

// ConfigChangedData carries a debounced file change observation.
type ConfigChangedData struct {
	Change types.ChangeEvent `json:"change"`
}

// ConfigSavedData is published after a successful save through the store.
type ConfigSavedData struct {
	ClientID string      `json:"clientId"`
	Scope    types.Scope `json:"scope"`
	Path     string      `json:"path"`
}

// BackupCreatedData is published after a snapshot is written.
type BackupCreatedData struct {
	Backup types.Backup `json:"backup"`
}

// BackupRestoredData is published after a snapshot is applied.
type BackupRestoredData struct {
	Backup     types.Backup `json:"backup"`
	TargetPath string       `json:"targetPath"`
}

// ResolutionInvalidatedData names a client whose cached resolution was
// dropped because an underlying file changed.
type ResolutionInvalidatedData struct {
	ClientID string `json:"clientId"`
	Path     string `json:"path"`
}

// BulkStartedData is published when a bulk operation begins running.
type BulkStartedData struct {
	ID        string              `json:"id"`
	Operation types.BulkOperation `json:"operation"`
}

// BulkCompletedData carries the final result of a bulk operation.
type BulkCompletedData struct {
	Result types.BulkResult `json:"result"`
}
