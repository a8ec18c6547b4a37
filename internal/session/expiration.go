package session

import "time"

// State is the expiration-relevant snapshot of a session. Policies are
// pure predicates over it.
type State struct {
	Created  time.Time
	LastUsed time.Time
	LongTerm bool
	Now      time.Time
}

// ExpirationPolicy decides whether a session is expired. Implementations
// must be side-effect free; the predicate is consulted inside
// Session.IsValid and by the background sweeper.
type ExpirationPolicy interface {
	IsExpired(s State) bool
}

// HardTimeoutPolicy expires a session a fixed duration after creation.
type HardTimeoutPolicy struct {
	TTL time.Duration
}

func (p HardTimeoutPolicy) IsExpired(s State) bool {
	return s.Now.Sub(s.Created) > p.TTL
}

// SlidingWindowPolicy expires a session that has been idle longer than the
// window.
type SlidingWindowPolicy struct {
	Window time.Duration
}

func (p SlidingWindowPolicy) IsExpired(s State) bool {
	return s.Now.Sub(s.LastUsed) > p.Window
}

// LongTermPolicy selects between two policies on the session's long-term
// ("remember me") flag. The flag is a plain boolean on the session; only
// policy selection distinguishes long-term sessions.
type LongTermPolicy struct {
	Default  ExpirationPolicy
	LongTerm ExpirationPolicy
}

func (p LongTermPolicy) IsExpired(s State) bool {
	if s.LongTerm {
		return p.LongTerm.IsExpired(s)
	}
	return p.Default.IsExpired(s)
}

// NeverExpires is useful in tests.
type NeverExpires struct{}

func (NeverExpires) IsExpired(State) bool { return false }
