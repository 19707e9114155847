// Package pattern implements the group pattern grammar shared by the NNTP
// commands (NEWNEWS, LIST) and the puller's catalog filter: comma-separated
// items, optional leading "!" negation, "*" and "?" globs. Evaluation is
// short-circuit in order; the first item whose glob matches decides the
// outcome by its polarity.
package pattern

import (
	"fmt"
	"strings"
)

type item struct {
	negate bool
	glob   string
}

// Pattern is a compiled pattern.
type Pattern struct {
	items []item
}

// All matches every group.
var All = &Pattern{items: []item{{glob: "*"}}}

// Compile parses a pattern string. An empty pattern, an empty item or a
// bare "!" is invalid.
func Compile(s string) (*Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	var p Pattern
	for _, raw := range strings.Split(s, ",") {
		it := item{}
		if strings.HasPrefix(raw, "!") {
			it.negate = true
			raw = raw[1:]
		}
		if raw == "" {
			return nil, fmt.Errorf("empty pattern item")
		}
		if strings.ContainsAny(raw, " \t") {
			return nil, fmt.Errorf("whitespace in pattern item %q", raw)
		}
		it.glob = raw
		p.items = append(p.items, it)
	}
	return &p, nil
}

// Match reports whether the group name matches the pattern.
func (p *Pattern) Match(name string) bool {
	for _, it := range p.items {
		if matchGlob(it.glob, name) {
			return !it.negate
		}
	}
	return false
}

// matchGlob matches name against a glob where "*" matches any run and "?"
// matches exactly one character. No character classes.
func matchGlob(glob, name string) bool {
	// iterative matcher with single-star backtracking
	gi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(name) {
		switch {
		case gi < len(glob) && (glob[gi] == '?' || glob[gi] == name[ni]):
			gi++
			ni++
		case gi < len(glob) && glob[gi] == '*':
			star = gi
			mark = ni
			gi++
		case star >= 0:
			gi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for gi < len(glob) && glob[gi] == '*' {
		gi++
	}
	return gi == len(glob)
}
