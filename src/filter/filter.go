// Package filter decides which discovered volumes are backup candidates.
package filter

import (
	"regexp"
	"strings"
)

// Rule holds the volume selection policy: allow-prefixes plus one
// optional exclude pattern. An empty prefix list allows every volume;
// exclusion is evaluated after inclusion.
type Rule struct {
	Prefixes []string
	Exclude  *regexp.Regexp
}

// InScope reports whether a volume name passes the rule.
func (r Rule) InScope(name string) bool {
	return InScope(name, r.Prefixes, r.Exclude)
}

// InScope reports whether name is selected: it must carry one of the
// prefixes (no prefixes = allow all) and must not match exclude.
func InScope(name string, prefixes []string, exclude *regexp.Regexp) bool {
	if !hasAnyPrefix(name, prefixes) {
		return false
	}
	if exclude != nil && exclude.MatchString(name) {
		return false
	}
	return true
}

func hasAnyPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
