package types

// ResolvedConfiguration is the flattened, conflict-annotated merge of the
// four scope files for one client. It is derived on demand and never
// persisted; for identical scope snapshots the result is identical,
// including conflict ordering.
type ResolvedConfiguration struct {
	Servers   map[string]ServerEntry `json:"servers"`
	Sources   map[string]Scope       `json:"sources"`
	Conflicts []ScopeConflict        `json:"conflicts"`
	Metadata  ResolvedMetadata       `json:"metadata"`
}

// ResolvedMetadata carries only deterministic facts about the resolution,
// so resolving twice with no intervening writes is bit-identical.
type ResolvedMetadata struct {
	ClientID string `json:"clientId"`
	// Scopes lists, in ascending priority order, the scopes whose files
	// existed and parsed.
	Scopes []Scope `json:"scopes"`
	// ParseFailures lists scopes whose file existed but could not be
	// parsed; those scopes contribute nothing to Servers.
	ParseFailures []ParseFailure `json:"parseFailures,omitempty"`
}

// ParseFailure names a scope file that exists but is malformed.
type ParseFailure struct {
	Scope   Scope  `json:"scope"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ScopeConflict records that two or more scopes define the same server
// name with differing content. It is data, not an error: the caller
// decides what to do with it.
type ScopeConflict struct {
	ServerName  string              `json:"serverName"`
	Candidates  []ConflictCandidate `json:"candidates"`
	ActiveEntry ServerEntry         `json:"activeEntry"`
}

// ConflictCandidate is one scope's definition of a conflicted name.
type ConflictCandidate struct {
	Scope    Scope       `json:"scope"`
	Entry    ServerEntry `json:"entry"`
	Priority int         `json:"priority"`
}
