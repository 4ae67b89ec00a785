// Package interpolate substitutes ${name} tokens in text.
package interpolate

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// LookupFunc resolves a variable name. The boolean reports whether the name is known.
type LookupFunc func(name string) (string, bool)

// Expand replaces every ${name} token in text with vars[name].
// Tokens naming an unknown variable are left untouched.
func Expand(text string, vars map[string]string) string {
	return ExpandFunc(text, func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

// ExpandFunc is like Expand but resolves names through lookup.
func ExpandFunc(text string, lookup LookupFunc) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		return token
	})
}

// Names returns the distinct variable names referenced by text, in order of first use.
func Names(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Rename rewrites ${old} tokens to ${new} for every entry of aliases.
// Unknown names are left as they are.
func Rename(text string, aliases map[string]string) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		if canonical, ok := aliases[name]; ok {
			return "${" + canonical + "}"
		}
		return token
	})
}
