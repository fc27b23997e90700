package perms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	global := Parse("*")
	assert.Equal(t, GlobalWildcard, global.Kind)

	prefixed := Parse("essentials.*")
	require.Equal(t, PrefixWildcard, prefixed.Kind)
	assert.Equal(t, "essentials.", prefixed.Prefix)

	literal := Parse("essentials.fly")
	assert.Equal(t, Literal, literal.Kind)
	assert.Equal(t, "essentials.fly", literal.Value)
}

func TestRegistryWithPrefix(t *testing.T) {
	reg := NewRegistry("essentials.fly", "essentials.heal", "worldedit.wand")

	matches := reg.WithPrefix("essentials.")
	assert.ElementsMatch(t, []string{"essentials.fly", "essentials.heal"}, matches)

	reg.Register("essentials.god")
	assert.Len(t, reg.WithPrefix("essentials."), 3)
}

func TestExpandLiterals(t *testing.T) {
	reg := NewRegistry("a.b.x", "a.b.y", "z")

	got := Expand([]string{"a.b.x", "c"}, reg)
	assert.Equal(t, []string{"a.b.x", "c"}, got)
}

func TestExpandPrefixWildcard(t *testing.T) {
	reg := NewRegistry("a.b.x", "a.b.y", "z")

	got := Expand([]string{"a.b.*", "c"}, reg)
	assert.Equal(t, []string{"a.b.*", "a.b.x", "a.b.y", "c"}, got)
}

func TestExpandGlobalWildcard(t *testing.T) {
	reg := NewRegistry("a", "b")

	got := Expand([]string{"*"}, reg)
	assert.Equal(t, []string{"*", "a", "b"}, got)
}

func TestExpandDeduplicates(t *testing.T) {
	reg := NewRegistry("a.x")

	got := Expand([]string{"a.*", "a.x"}, reg)
	assert.Equal(t, []string{"a.*", "a.x"}, got)
}

func TestExpandEmptyGrant(t *testing.T) {
	reg := NewRegistry("a")
	assert.Empty(t, Expand(nil, reg))
}
