package types

import "time"

// Backup is an immutable snapshot of a configuration file taken before a
// destructive write. The backup file itself is a verbatim copy of the
// original bytes, so ContentHash is the hash of both.
type Backup struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	Scope        Scope     `json:"scope"`
	OriginalPath string    `json:"originalPath"`
	BackupPath   string    `json:"backupPath"`
	Timestamp    time.Time `json:"timestamp"`
	ContentHash  string    `json:"contentHash"`
	Size         int64     `json:"size"`
}
