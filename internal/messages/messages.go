// Package messages loads localized message templates and renders them with
// {placeholder} substitution.
package messages

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is a flattened message catalog keyed by dotted path.
type Catalog struct {
	entries map[string]string
}

// Defaults returns the built-in English catalog used when no messages file
// is configured.
func Defaults() *Catalog {
	return &Catalog{entries: map[string]string{
		"group.created":          "Group {group} created.",
		"group.deleted":          "Group {group} deleted, {count} user(s) reassigned to default.",
		"group.exists":           "Group {group} already exists.",
		"group.not-found":        "Group {group} does not exist.",
		"group.protected":        "The default group cannot be deleted.",
		"assign.success":         "{user} is now in group {group}.",
		"assign.permanent":       "The assignment is permanent.",
		"assign.temporary":       "The assignment expires in {duration}.",
		"assign.invalid-expiry":  "Invalid duration: {error}. Examples: 7d, 1mo2w, 30m, permanent.",
		"userinfo.permanent":     "Group membership: permanent.",
		"userinfo.expired":       "Group membership: expired.",
		"userinfo.remaining":     "Group membership expires in {duration}.",
		"store.unavailable":      "The data store is currently unavailable, please retry.",
	}}
}

// Load reads a YAML messages file. Top-level nesting is flattened with
// dotted keys, matching the `messages:` layout of the original catalog
// format. Missing file falls back to the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read messages: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	if nested, ok := raw["messages"].(map[string]interface{}); ok {
		raw = nested
	}

	c := &Catalog{entries: make(map[string]string)}
	flatten("", raw, c.entries)

	// Anything the file does not override keeps its default.
	for key, value := range Defaults().entries {
		if _, ok := c.entries[key]; !ok {
			c.entries[key] = value
		}
	}
	return c, nil
}

func flatten(prefix string, raw map[string]interface{}, into map[string]string) {
	for key, value := range raw {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case string:
			into[full] = v
		case map[string]interface{}:
			flatten(full, v, into)
		}
	}
}

// Get renders the message at the given path, replacing {name} placeholders
// with the following pairwise name/value arguments. An unknown path yields a
// visible marker instead of an error so a missing translation never breaks a
// caller.
func (c *Catalog) Get(path string, placeholders ...string) string {
	msg, ok := c.entries[path]
	if !ok {
		return "Message not found: " + path
	}
	for i := 0; i+1 < len(placeholders); i += 2 {
		msg = strings.ReplaceAll(msg, "{"+placeholders[i]+"}", placeholders[i+1])
	}
	return msg
}
