// Package services decides which relying services the authority will
// issue accesses for.
package services

import (
	"fmt"
	"regexp"
)

// Registry holds the allowed-service patterns. An empty registry is open:
// every service matches. Patterns are anchored regular expressions over
// the full service URL.
type Registry struct {
	patterns []*regexp.Regexp
}

// NewRegistry compiles the pattern list. Each pattern is anchored so a
// prefix match cannot widen the allowed set.
func NewRegistry(patterns []string) (*Registry, error) {
	r := &Registry{}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid service pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// MatchesExistingService reports whether the service URL is registered.
func (r *Registry) MatchesExistingService(serviceID string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(serviceID) {
			return true
		}
	}
	return false
}
