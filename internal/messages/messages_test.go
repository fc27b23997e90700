package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWithPlaceholders(t *testing.T) {
	c := Defaults()

	got := c.Get("group.created", "group", "vip")
	assert.Equal(t, "Group vip created.", got)

	got = c.Get("group.deleted", "group", "vip", "count", "3")
	assert.Equal(t, "Group vip deleted, 3 user(s) reassigned to default.", got)
}

func TestGetUnknownPath(t *testing.T) {
	c := Defaults()
	assert.Equal(t, "Message not found: no.such.key", c.Get("no.such.key"))
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "The default group cannot be deleted.", c.Get("group.protected"))
}

func TestLoadOverridesAndBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yml")
	content := []byte("messages:\n  group:\n    created: \"Created {group}!\"\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Created vip!", c.Get("group.created", "group", "vip"))
	// untouched keys keep their defaults
	assert.Equal(t, "Group vip does not exist.", c.Get("group.not-found", "group", "vip"))
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- nope"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
