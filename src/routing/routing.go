// Package routing maps archives to restore targets. The resolver is a
// pure function over the configured policy, deliberately free of I/O so
// dry-run output and real runs cannot diverge.
package routing

import (
	"fmt"
	"regexp"
)

// Archive identifies one archive for routing purposes.
type Archive struct {
	Name     string
	Provider string
}

// Rule is one ordered routing entry: a provider match plus an optional
// archive-name pattern.
type Rule struct {
	Provider string
	Pattern  *regexp.Regexp
	Target   string
}

// Target is a restore destination as the resolver sees it; declaration
// order decides same-type defaulting.
type Target struct {
	Name string
	Type string
}

// Tier records which resolution stage produced a route.
type Tier string

const (
	TierRule          Tier = "rule"
	TierSameType      Tier = "same-type-default"
	TierGlobalDefault Tier = "global-default"
)

// Resolution is the routing outcome for one archive.
type Resolution struct {
	Target string
	Tier   Tier
}

// NoRouteError means no rule matched, no target shares the archive's
// provider type, and no global default is configured.
type NoRouteError struct {
	Archive string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no restore route found for archive %q", e.Archive)
}

// Resolve picks the destination target for one archive.
//
// Order is fixed and first-match-wins:
//  1. rules in declaration order; a rule matches when its provider equals
//     the archive's provider and its pattern, when present, matches the
//     archive name;
//  2. the first target whose type equals the archive's provider;
//  3. the global default target, which deliberately permits cross-type
//     restores for disaster recovery.
//
// With unchanged inputs the same archive always resolves identically.
func Resolve(a Archive, rules []Rule, targets []Target, defaultTarget string) (Resolution, error) {
	for _, r := range rules {
		if r.Provider != a.Provider {
			continue
		}
		if r.Pattern != nil && !r.Pattern.MatchString(a.Name) {
			continue
		}
		return Resolution{Target: r.Target, Tier: TierRule}, nil
	}
	for _, t := range targets {
		if t.Type == a.Provider {
			return Resolution{Target: t.Name, Tier: TierSameType}, nil
		}
	}
	if defaultTarget != "" {
		return Resolution{Target: defaultTarget, Tier: TierGlobalDefault}, nil
	}
	return Resolution{}, &NoRouteError{Archive: a.Name}
}
