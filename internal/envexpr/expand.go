// Package envexpr substitutes ${env.KEY} references in configuration text.
package envexpr

import (
	"os"
	"strings"
	"unicode"
)

const prefix = "${env."

// Expand replaces every ${env.KEY} in value with the KEY environment
// variable, or "" when unset. A reference with a key that is not made of
// letters, digits and '_' is kept literally; an unterminated one ends the scan.
func Expand(value string) string {
	return ExpandFunc(value, os.Getenv)
}

// ExpandFunc is Expand with a custom lookup.
func ExpandFunc(value string, lookup func(string) string) string {
	if !strings.Contains(value, prefix) {
		return value
	}
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(value[i:], prefix)
		if idx < 0 {
			b.WriteString(value[i:])
			return b.String()
		}
		b.WriteString(value[i : i+idx])
		start := i + idx + len(prefix)
		end := strings.IndexByte(value[start:], '}')
		if end < 0 {
			b.WriteString(value[i+idx:])
			return b.String()
		}
		key := value[start : start+end]
		if !validKey(key) {
			b.WriteString(prefix)
			i = start
			continue
		}
		b.WriteString(lookup(key))
		i = start + end + 1
	}
}

func validKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
