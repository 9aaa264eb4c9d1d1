// Package flags parses the comma-separated feature flag list.
package flags

import (
	"sort"
	"strings"
)

// Flags maps enabled flag names to true. A missing name means disabled.
type Flags map[string]bool

// Parse splits s on commas and records every trimmed, non-empty token as an
// enabled flag. Names are case-sensitive.
func Parse(s string) Flags {
	out := Flags{}
	for _, tok := range strings.Split(s, ",") {
		name := strings.TrimSpace(tok)
		if name == "" {
			continue
		}
		out[name] = true
	}
	return out
}

// Enabled reports whether name is present and true.
func (f Flags) Enabled(name string) bool {
	return f[name]
}

// Names returns the enabled flag names in sorted order.
func (f Flags) Names() []string {
	names := make([]string, 0, len(f))
	for name, on := range f {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// String serializes the enabled flags so that Parse(f.String()) yields the
// same set.
func (f Flags) String() string {
	return strings.Join(f.Names(), ",")
}
