// Package filter implements the mkdwarfs include/exclude glob rule list:
// an ordered list of patterns, each anchored to the source tree root (a
// leading "/") or floating (matched at any depth), with later rules
// overriding earlier ones for a given path.
package filter

import "github.com/bmatcuk/doublestar/v4"

// Rule is one include/exclude line.
type Rule struct {
	Pattern string
	Include bool
}

// Filter is an ordered rule list applied to scanner paths.
type Filter struct {
	rules []Rule
}

// New builds a Filter from rules in the order they should be applied.
func New(rules ...Rule) *Filter {
	return &Filter{rules: rules}
}

// Match reports whether path should be kept: the last rule whose pattern
// matches path decides; with no matching rule, the path is kept (filters
// are opt-out by default, matching mkdwarfs's default-include behavior).
func (f *Filter) Match(path string) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}
	keep := true
	for _, r := range f.rules {
		if matchRule(r.Pattern, path) {
			keep = r.Include
		}
	}
	return keep
}

func matchRule(pattern, path string) bool {
	if len(pattern) > 0 && pattern[0] == '/' {
		anchored := pattern[1:]
		ok, _ := doublestar.Match(anchored, path)
		return ok
	}
	// Floating pattern: matches the path itself or any suffix starting
	// at a path-component boundary, i.e. at any depth in the tree.
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	ok, _ := doublestar.Match("**/"+pattern, path)
	return ok
}
