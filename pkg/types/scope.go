// Package types defines the shared data model for the scope resolution
// and synchronization engine.
package types

// Scope identifies one of the four configuration layers a client
// configuration file can live in.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeUser    Scope = "user"
	ScopeLocal   Scope = "local"
	ScopeProject Scope = "project"
)

// Priority returns the fixed precedence of a scope:
// project(4) > local(3) > user(2) > global(1).
// Unknown scopes return 0 and always lose.
func (s Scope) Priority() int {
	switch s {
	case ScopeProject:
		return 4
	case ScopeLocal:
		return 3
	case ScopeUser:
		return 2
	case ScopeGlobal:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the four known scopes.
func (s Scope) Valid() bool {
	return s.Priority() > 0
}

func (s Scope) String() string {
	return string(s)
}

// AllScopes returns the four scopes in ascending priority order
// (global, user, local, project).
func AllScopes() []Scope {
	return []Scope{ScopeGlobal, ScopeUser, ScopeLocal, ScopeProject}
}

// ParseScope converts a string into a Scope, reporting whether it is valid.
func ParseScope(s string) (Scope, bool) {
	sc := Scope(s)
	return sc, sc.Valid()
}
