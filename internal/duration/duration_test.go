package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"1mo": 30 * 24 * time.Hour,
	}
	for input, want := range cases {
		got, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestParseCompound(t *testing.T) {
	got, err := Parse("1mo2w3d4h5m6s")
	require.NoError(t, err)
	want := 30*24*time.Hour + 2*7*24*time.Hour + 3*24*time.Hour +
		4*time.Hour + 5*time.Minute + 6*time.Second
	assert.Equal(t, want, got)
}

func TestParsePermanent(t *testing.T) {
	for _, input := range []string{"", "permanent", "perm", "forever", "PERMANENT", " Forever "} {
		got, err := Parse(input)
		require.NoError(t, err, input)
		assert.Zero(t, got, input)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"abc", "d7", "...", "one week"} {
		_, err := Parse(input)
		assert.ErrorIs(t, err, ErrInvalid, input)
	}
}

func TestParseNonPositive(t *testing.T) {
	_, err := Parse("0s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestParseCaseInsensitive(t *testing.T) {
	got, err := Parse("1D")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, got)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Expired", Format(0))
	assert.Equal(t, "Expired", Format(-time.Minute))
	assert.Equal(t, "1 second", Format(time.Second))
	assert.Equal(t, "2 minutes", Format(2*time.Minute))
	assert.Equal(t, "1 day, 2 hours", Format(26*time.Hour))
	assert.Equal(t,
		"1 month, 2 weeks, 3 days, 4 hours, 5 minutes, 6 seconds",
		Format(30*24*time.Hour+2*7*24*time.Hour+3*24*time.Hour+4*time.Hour+5*time.Minute+6*time.Second))
}
