package types

import "time"

// ChangeKind classifies what happened to a watched file.
type ChangeKind string

const (
	ChangeModified  ChangeKind = "modified"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeRecreated ChangeKind = "recreated"
)

// ChangeOrigin says whether a change was produced by this process
// (a save through the config store) or by something else on disk.
type ChangeOrigin string

const (
	OriginInternal ChangeOrigin = "internal"
	OriginExternal ChangeOrigin = "external"
)

// ChangeEvent is one debounced observation of a watched configuration file.
type ChangeEvent struct {
	Path      string       `json:"path"`
	Kind      ChangeKind   `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	Origin    ChangeOrigin `json:"origin"`
	// ContentHash is the hash of the file after the change, empty for
	// deletions.
	ContentHash string `json:"contentHash,omitempty"`
}
