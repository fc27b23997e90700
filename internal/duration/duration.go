// Package duration parses compound duration strings like "1mo2w3d4h5m6s"
// used when assigning a group for a limited time.
//
// Supported units: mo (months of 30 days), w, d, h, m, s. The keywords
// "permanent", "perm" and "forever" (and an empty string) mean no expiry.
package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var pattern = regexp.MustCompile(`(\d+)(mo|w|d|h|m|s)`)

const (
	month = 30 * 24 * time.Hour
	week  = 7 * 24 * time.Hour
	day   = 24 * time.Hour
)

var units = map[string]time.Duration{
	"mo": month,
	"w":  week,
	"d":  day,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
}

// ErrInvalid reports a duration string that matches no unit at all.
var ErrInvalid = errors.New("duration: invalid format")

// Parse converts a compound duration string to a time.Duration. A zero
// result with a nil error means permanent.
func Parse(input string) (time.Duration, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "", "permanent", "perm", "forever":
		return 0, nil
	}

	matches := pattern.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, input)
	}

	var total time.Duration
	for _, m := range matches {
		value, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, input)
		}
		total += time.Duration(value) * units[m[2]]
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration: must be positive, got %q", input)
	}
	return total, nil
}

// Format renders a duration as "1 month, 2 weeks, 3 days, ...". Zero or
// negative durations render as "Expired".
func Format(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}

	var b strings.Builder
	remaining := d
	for _, u := range []struct {
		size time.Duration
		name string
	}{
		{month, "month"},
		{week, "week"},
		{day, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	} {
		n := remaining / u.size
		remaining %= u.size
		if n == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d %s", n, u.name)
		if n > 1 {
			b.WriteString("s")
		}
	}
	return b.String()
}
