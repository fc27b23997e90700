// Package perms expands a group's flat permission strings against the
// registry of permissions known to the host.
package perms

import (
	"sort"
	"strings"
	"sync"
)

// Kind discriminates the permission variants.
type Kind int

const (
	// Literal matches exactly one permission string.
	Literal Kind = iota
	// PrefixWildcard ("a.b.*") matches itself plus every registered
	// permission under its prefix.
	PrefixWildcard
	// GlobalWildcard ("*") matches the entire registry.
	GlobalWildcard
)

// Perm is one parsed permission entry.
type Perm struct {
	Kind   Kind
	Value  string // the raw string as granted
	Prefix string // populated for PrefixWildcard, includes the trailing dot
}

// Parse classifies a raw permission string.
func Parse(raw string) Perm {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "*":
		return Perm{Kind: GlobalWildcard, Value: raw}
	case strings.HasSuffix(raw, ".*"):
		return Perm{Kind: PrefixWildcard, Value: raw, Prefix: raw[:len(raw)-1]}
	default:
		return Perm{Kind: Literal, Value: raw}
	}
}

// Registry holds the permission strings registered by the host runtime. It
// is safe for concurrent use; reads take a snapshot.
type Registry struct {
	mu    sync.RWMutex
	known map[string]struct{}
}

// NewRegistry creates a registry seeded with the given permissions.
func NewRegistry(known ...string) *Registry {
	r := &Registry{known: make(map[string]struct{}, len(known))}
	for _, p := range known {
		r.known[p] = struct{}{}
	}
	return r
}

// Register adds permission strings to the registry.
func (r *Registry) Register(perms ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p != "" {
			r.known[p] = struct{}{}
		}
	}
}

// All returns every registered permission.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.known))
	for p := range r.known {
		result = append(result, p)
	}
	return result
}

// WithPrefix returns every registered permission under the given prefix.
func (r *Registry) WithPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []string
	for p := range r.known {
		if strings.HasPrefix(p, prefix) {
			result = append(result, p)
		}
	}
	return result
}

// Len returns the number of registered permissions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}

// Expand resolves a group's granted permission strings into the full sorted
// set the user effectively holds. Expansion is recomputed from scratch on
// every call; group permission sets change via group edits, not per-entry
// toggles, so there is nothing to diff against.
func Expand(granted []string, registry *Registry) []string {
	set := make(map[string]struct{})

	for _, raw := range granted {
		perm := Parse(raw)
		if perm.Value == "" {
			continue
		}
		switch perm.Kind {
		case GlobalWildcard:
			set[perm.Value] = struct{}{}
			for _, p := range registry.All() {
				set[p] = struct{}{}
			}
		case PrefixWildcard:
			set[perm.Value] = struct{}{}
			for _, p := range registry.WithPrefix(perm.Prefix) {
				set[p] = struct{}{}
			}
		default:
			set[perm.Value] = struct{}{}
		}
	}

	result := make([]string, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}
