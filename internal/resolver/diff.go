package resolver

import (
	"encoding/json"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mcpscope/mcpscope/pkg/types"
)

// canonical renders an entry as indented JSON with the resolution-only
// Scope field cleared, so diffs show content differences only.
func canonical(e types.ServerEntry) string {
	c := e.Clone()
	c.Scope = ""
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return e.Name
	}
	return string(data) + "\n"
}

// DiffEntries renders a colored character diff between two server entry
// definitions, used when presenting a conflict's candidates.
func DiffEntries(a, b types.ServerEntry) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(canonical(a), canonical(b), false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}

// ConflictDiffs maps each losing candidate scope to its diff against the
// active entry.
func ConflictDiffs(c types.ScopeConflict) map[types.Scope]string {
	out := make(map[types.Scope]string, len(c.Candidates))
	for _, cand := range c.Candidates {
		if cand.Scope == c.ActiveEntry.Scope {
			continue
		}
		out[cand.Scope] = DiffEntries(c.ActiveEntry, cand.Entry)
	}
	return out
}
