package types

import "fmt"

// BulkOperation is the closed set of cross-client operations.
type BulkOperation string

const (
	BulkSync   BulkOperation = "sync"
	BulkCopy   BulkOperation = "copy"
	BulkRemove BulkOperation = "remove"
	BulkTest   BulkOperation = "test"
)

// BulkState tracks the lifecycle of a bulk operation:
// idle -> running -> completed | aborted.
type BulkState string

const (
	// BulkIdle is the state before execution begins. A BulkResult never
	// carries it; results exist only once the operation is running.
	BulkIdle      BulkState = "idle"
	BulkRunning   BulkState = "running"
	BulkCompleted BulkState = "completed"
	BulkAborted   BulkState = "aborted"
)

// BulkRequest describes one bulk operation over the cross product of
// targets and servers. It is validated at the engine boundary before any
// component sees it.
type BulkRequest struct {
	Operation BulkOperation `json:"operation"`
	// Source is the client whose resolved view supplies entries for
	// sync and copy. Unused for remove and test.
	Source  string   `json:"source,omitempty"`
	Targets []string `json:"targets"`
	// Servers selects entries by name. Required for copy and remove;
	// optional for sync (empty means everything the source resolves).
	Servers []string    `json:"servers,omitempty"`
	Options BulkOptions `json:"options"`
}

// BulkOptions tunes how target writes are performed.
type BulkOptions struct {
	// OverwriteExisting lets sync and copy replace entries already
	// present on the target with differing content.
	OverwriteExisting bool `json:"overwriteExisting"`
	// TargetScope is the scope written on each target. Defaults to user.
	TargetScope Scope `json:"targetScope,omitempty"`
	// Force acknowledges backup failure and writes anyway.
	Force bool `json:"force,omitempty"`
}

// Validate checks structural validity. Client existence is checked later
// against the registry.
func (r *BulkRequest) Validate() error {
	switch r.Operation {
	case BulkSync, BulkCopy, BulkRemove, BulkTest:
	default:
		return fmt.Errorf("unknown bulk operation %q", r.Operation)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("bulk %s: at least one target required", r.Operation)
	}
	switch r.Operation {
	case BulkSync, BulkCopy:
		if r.Source == "" {
			return fmt.Errorf("bulk %s: source client required", r.Operation)
		}
	}
	switch r.Operation {
	case BulkCopy, BulkRemove, BulkTest:
		if len(r.Servers) == 0 {
			return fmt.Errorf("bulk %s: at least one server required", r.Operation)
		}
	}
	if r.Options.TargetScope != "" && !r.Options.TargetScope.Valid() {
		return fmt.Errorf("bulk %s: invalid target scope %q", r.Operation, r.Options.TargetScope)
	}
	return nil
}

// BulkItemResult is the outcome of one (target, server) pair.
type BulkItemResult struct {
	Target  string `json:"target"`
	Server  string `json:"server"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkSummary aggregates pair outcomes. Partial failure is reported here,
// never as an error from the bulk call itself.
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkResult is the complete outcome of a bulk operation.
//
// There is deliberately no rollback of already-applied pairs when a later
// pair fails: each pair is independent and its failure is isolated.
type BulkResult struct {
	ID        string           `json:"id"`
	Operation BulkOperation    `json:"operation"`
	State     BulkState        `json:"state"`
	Results   []BulkItemResult `json:"results"`
	Summary   BulkSummary      `json:"summary"`
}
