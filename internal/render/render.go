// Package render substitutes user placeholders in display text, e.g. sign
// lines shown by the host.
//
// Placeholders:
//
//	%Name%        -> "<prefix>Name"
//	%Name%group%  -> "<prefix>" of Name's group
package render

import "regexp"

var (
	namePattern  = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)
	groupPattern = regexp.MustCompile(`%([A-Za-z0-9_]+)%group%`)
)

const unknownUser = "&c[Unknown]"

// Lookup resolves a user name to display state. Unknown users report ok ==
// false.
type Lookup interface {
	PrefixFor(name string) (prefix string, ok bool)
}

// Placeholders rewrites every placeholder in text using the lookup. Group
// placeholders are rewritten first so the inner name placeholder is not
// consumed prematurely.
func Placeholders(text string, lookup Lookup) string {
	result := groupPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := groupPattern.FindStringSubmatch(match)[1]
		prefix, ok := lookup.PrefixFor(name)
		if !ok {
			return unknownUser
		}
		return prefix
	})

	return namePattern.ReplaceAllStringFunc(result, func(match string) string {
		name := namePattern.FindStringSubmatch(match)[1]
		prefix, ok := lookup.PrefixFor(name)
		if !ok {
			return unknownUser
		}
		return prefix + name
	})
}
