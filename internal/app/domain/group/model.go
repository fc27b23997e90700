package group

import "strings"

// DefaultName is the protected sentinel group every user falls back to.
const DefaultName = "default"

// NeutralPrefix is displayed when no group record can be resolved.
const NeutralPrefix = "&7"

// Group represents a named role with a display prefix and a flat permission
// set. Names are stored lower-cased and compared case-insensitively.
type Group struct {
	ID          int64
	Name        string
	Prefix      string
	Permissions []string
}

// Key returns the canonical cache key for a group name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsDefault reports whether name refers to the protected default group.
func IsDefault(name string) bool {
	return Key(name) == DefaultName
}
