package session

import (
	"time"

	"github.com/auriga-id/casd/internal/authn"
)

// PolicyKind enumerates the usage policy variants. The protocol-specific
// access hierarchy of classic CAS collapses into this tag plus the
// Protocol tag; validation is a behavior table over the kind.
type PolicyKind string

const (
	// SelfValidating accesses never mutate state on validation; the token
	// is assumed consumed on issue.
	SelfValidating PolicyKind = "self-validating"
	// BoundedUses accesses allow a fixed number of validations, then fail
	// with ErrTokenUsed.
	BoundedUses PolicyKind = "bounded-uses"
	// LogoutOnly accesses exist purely to receive the cascade-logout
	// notification; validation is a state no-op.
	LogoutOnly PolicyKind = "logout-only"
)

// UsagePolicy is the tagged variant controlling validation behavior.
// Uses is meaningful only for BoundedUses.
type UsagePolicy struct {
	Kind PolicyKind
	Uses int
}

// OneShot is the default policy for CAS1/CAS2 service tickets.
func OneShot() UsagePolicy { return UsagePolicy{Kind: BoundedUses, Uses: 1} }

// LogoutNotifier tells a relying party to destroy its local session.
// Implementations are best-effort and must bound their own I/O; the core
// never retries.
type LogoutNotifier interface {
	DestroyLocalSession(resourceID, accessID string) bool
}

// NopNotifier performs no notification.
type NopNotifier struct{}

func (NopNotifier) DestroyLocalSession(string, string) bool { return false }

// Access is a resource-scoped, validatable, optionally one-shot capability
// belonging to a session. All state transitions happen under the owning
// session tree's lock.
type Access struct {
	id         string
	resourceID string
	protocol   Protocol
	session    *Session // owning session; the access does not outlive it

	policy    UsagePolicy
	remaining int
	created   time.Time

	used                  bool
	localSessionDestroyed bool
}

// ID returns the token identifier.
func (a *Access) ID() string { return a.id }

// ResourceID returns the URI of the relying service this access is scoped to.
func (a *Access) ResourceID() string { return a.resourceID }

// Protocol returns the response-encoding tag the access was granted under.
func (a *Access) Protocol() Protocol { return a.protocol }

// Policy returns the usage policy variant.
func (a *Access) Policy() UsagePolicy { return a.policy }

// OwningSessionID returns the id of the session that granted this access.
func (a *Access) OwningSessionID() string {
	return a.session.id
}

// IsUsed reports whether the access has been consumed.
func (a *Access) IsUsed() bool {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	return a.used
}

// IsLocalSessionDestroyed reports whether the relying party acknowledged a
// logout notification.
func (a *Access) IsLocalSessionDestroyed() bool {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	return a.localSessionDestroyed
}

// RequiresStorage reports whether the store must keep this access
// resolvable by its token. An access that can still be validated or that
// receives the cascade-logout notification needs storage; every policy
// here does at least one of the two, and a consumed one-shot still
// answers re-validation with ErrTokenUsed. The access stays indexed for
// as long as its tree is stored.
func (a *Access) RequiresStorage() bool { return true }

// Validate applies the token request to this access per its usage policy.
// State mutations committed here must be persisted by the caller via
// UpdateSession even when an error is returned.
func (a *Access) Validate(_ *TokenServiceAccessRequest) error {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()

	s := a.session
	if s.invalidated {
		return ErrInvalidatedSession
	}
	now := s.factory.clock()
	if s.expiredLocked(now) {
		return ErrTokenExpired
	}
	if a.expiredLocked(now) {
		return ErrTokenExpired
	}

	switch a.policy.Kind {
	case BoundedUses:
		if a.used {
			return ErrTokenUsed
		}
		a.remaining--
		if a.remaining <= 0 {
			a.used = true
		}
	case SelfValidating, LogoutOnly:
		// No state change.
	}

	s.lastUsed = now
	return nil
}

func (a *Access) expiredLocked(now time.Time) bool {
	ttl := a.session.factory.AccessTTL
	return ttl > 0 && now.Sub(a.created) > ttl
}

// Invalidate notifies the relying application that its local session
// should be destroyed. Best-effort: the result reflects notification
// success and is not retried.
func (a *Access) Invalidate() bool {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()
	return a.invalidateLocked()
}

func (a *Access) invalidateLocked() bool {
	if a.localSessionDestroyed {
		return true
	}
	a.localSessionDestroyed = a.session.factory.Notifier.DestroyLocalSession(a.resourceID, a.id)
	return a.localSessionDestroyed
}

// CreateDelegatedSession mints a new session whose parent is this access,
// letting the relying party request further accesses on behalf of the
// authenticated principal. The session is returned unstored; the caller
// persists it via UpdateSession.
func (a *Access) CreateDelegatedSession(resp *authn.Response) (*Session, error) {
	a.session.mu.Lock()
	defer a.session.mu.Unlock()

	if a.session.invalidated {
		return nil, ErrInvalidatedSession
	}

	child := a.session.factory.newSessionLocked(resp, a.session.mu, a)
	a.session.children[child.id] = child
	return child, nil
}
