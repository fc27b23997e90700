package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mapLookup map[string]string

func (m mapLookup) PrefixFor(name string) (string, bool) {
	prefix, ok := m[name]
	return prefix, ok
}

func TestPlaceholdersName(t *testing.T) {
	lookup := mapLookup{"Steve": "&6[VIP]"}

	got := Placeholders("Welcome %Steve%!", lookup)
	assert.Equal(t, "Welcome &6[VIP]Steve!", got)
}

func TestPlaceholdersGroup(t *testing.T) {
	lookup := mapLookup{"Steve": "&6[VIP]"}

	got := Placeholders("Rank: %Steve%group%", lookup)
	assert.Equal(t, "Rank: &6[VIP]", got)
}

func TestPlaceholdersUnknownUser(t *testing.T) {
	lookup := mapLookup{}

	assert.Equal(t, "&c[Unknown]", Placeholders("%Nobody%", lookup))
	assert.Equal(t, "&c[Unknown]", Placeholders("%Nobody%group%", lookup))
}

func TestPlaceholdersMixed(t *testing.T) {
	lookup := mapLookup{"Steve": "&6[VIP]", "Alex": "&7"}

	got := Placeholders("%Steve% and %Alex% are here", lookup)
	assert.Equal(t, "&6[VIP]Steve and &7Alex are here", got)
}

func TestPlaceholdersNoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Placeholders("plain text", mapLookup{}))
}
