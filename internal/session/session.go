package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/auriga-id/casd/internal/authn"
)

// Session is a principal's authenticated context. A root session is minted
// on login; delegated sessions hang off an access of an ancestor. The
// whole tree shares one mutex, so mutations of any member are serialized
// per tree, which is the consistency unit the storage contract requires.
//
// State machine: ACTIVE → INVALIDATED, one-way. Invalidation cascades to
// every access and child session.
type Session struct {
	mu *sync.Mutex // shared across the tree, owned by the root

	id      string
	parent  *Access // nil for a root session
	factory *Factory

	authentications []authn.Authentication
	accesses        map[string]*Access
	children        map[string]*Session

	created     time.Time
	lastUsed    time.Time
	longTerm    bool
	invalidated bool
}

// Factory builds and restores sessions. The zero value is not usable; use
// NewFactory.
type Factory struct {
	IDs      IDGenerator
	Notifier LogoutNotifier
	Policy   ExpirationPolicy
	// AccessTTL bounds the validation window of granted accesses. Zero
	// disables access expiry.
	AccessTTL time.Duration

	clock func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClock overrides the factory clock, for expiry tests.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.clock = now }
}

// NewFactory fills in defaults: UUID ids, no-op notifier, never-expiring
// policy.
func NewFactory(ids IDGenerator, notifier LogoutNotifier, policy ExpirationPolicy, accessTTL time.Duration, opts ...FactoryOption) *Factory {
	f := &Factory{
		IDs:       ids,
		Notifier:  notifier,
		Policy:    policy,
		AccessTTL: accessTTL,
		clock:     time.Now,
	}
	if f.IDs == nil {
		f.IDs = UUIDGenerator{}
	}
	if f.Notifier == nil {
		f.Notifier = NopNotifier{}
	}
	if f.Policy == nil {
		f.Policy = NeverExpires{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewRootSession mints a root session from a successful authentication.
func (f *Factory) NewRootSession(resp *authn.Response) (*Session, error) {
	if resp == nil || !resp.Succeeded || resp.Principal == nil {
		return nil, fmt.Errorf("cannot create session from failed authentication")
	}
	return f.newSessionLocked(resp, &sync.Mutex{}, nil), nil
}

// newSessionLocked builds a session sharing mu. For delegated sessions the
// caller holds mu already.
func (f *Factory) newSessionLocked(resp *authn.Response, mu *sync.Mutex, parent *Access) *Session {
	prefix := PrefixSession
	if parent != nil {
		prefix = PrefixDelegatedSession
	}
	now := f.clock()
	return &Session{
		mu:              mu,
		id:              f.IDs.NewID(prefix),
		parent:          parent,
		factory:         f,
		authentications: append([]authn.Authentication(nil), resp.Authentications...),
		accesses:        make(map[string]*Access),
		children:        make(map[string]*Session),
		created:         now,
		lastUsed:        now,
		longTerm:        resp.LongTerm,
	}
}

// ID returns the stable session identifier.
func (s *Session) ID() string { return s.id }

// IsRoot reports whether the session was created directly by a login.
func (s *Session) IsRoot() bool { return s.parent == nil }

// ParentAccess returns the access this delegated session hangs off, or nil
// for a root session.
func (s *Session) ParentAccess() *Access { return s.parent }

// Root walks up to the user-initiated session owning this tree.
func (s *Session) Root() *Session {
	cur := s
	for cur.parent != nil {
		cur = cur.parent.session
	}
	return cur
}

// Principal returns the identity the session was established for.
func (s *Session) Principal() authn.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authentications[0].Principal
}

// Authentications returns a copy of the append-only authentication list.
func (s *Session) Authentications() []authn.Authentication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authn.Authentication(nil), s.authentications...)
}

// IsLongTerm reports the "remember me" flag.
func (s *Session) IsLongTerm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longTerm
}

// Created returns the creation instant.
func (s *Session) Created() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// LastUsed returns the last grant/validate instant.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// IsInvalidated reports whether the session reached its terminal state.
func (s *Session) IsInvalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

// IsValid reports whether the session can still grant and validate:
// not invalidated and not expired per its policy.
func (s *Session) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalidated && !s.expiredLocked(s.factory.clock())
}

func (s *Session) expiredLocked(now time.Time) bool {
	return s.factory.Policy.IsExpired(State{
		Created:  s.created,
		LastUsed: s.lastUsed,
		LongTerm: s.longTerm,
		Now:      now,
	})
}

// Grant creates a fresh access for the target service. Tokens are one-shot
// unique: an identical (service, principal) grant always mints a new
// access. Rejected with ErrInvalidatedSession after invalidation.
func (s *Session) Grant(req *ServiceAccessRequest) (*Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalidated {
		return nil, ErrInvalidatedSession
	}

	prefix := PrefixAccess
	if req.Proxied {
		prefix = PrefixProxyAccess
	}
	policy := OneShot()
	if req.Protocol == ProtocolSAML11 {
		policy = UsagePolicy{Kind: SelfValidating}
	}

	now := s.factory.clock()
	access := &Access{
		id:         s.factory.IDs.NewID(prefix),
		resourceID: req.ServiceID,
		protocol:   req.Protocol,
		session:    s,
		policy:     policy,
		remaining:  policy.Uses,
		created:    now,
	}
	s.accesses[access.id] = access
	s.lastUsed = now
	return access, nil
}

// GetAccess looks up an access owned by this session. Returns nil when the
// session never granted the token.
func (s *Session) GetAccess(accessID string) *Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accesses[accessID]
}

// Accesses returns the session's accesses. The slice is a copy; the
// accesses are live.
func (s *Session) Accesses() []*Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Access, 0, len(s.accesses))
	for _, a := range s.accesses {
		out = append(out, a)
	}
	return out
}

// OutstandingAccesses returns the accesses not yet consumed, i.e. the
// relying-party sessions still alive when this session is destroyed.
func (s *Session) OutstandingAccesses() []*Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Access, 0, len(s.accesses))
	for _, a := range s.accesses {
		if !a.used {
			out = append(out, a)
		}
	}
	return out
}

// Children returns the delegated sessions hanging off this session's
// accesses.
func (s *Session) Children() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c)
	}
	return out
}

// Find locates a session by id within the tree rooted at s.
func (s *Session) Find(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

func (s *Session) findLocked(id string) *Session {
	if s.id == id {
		return s
	}
	for _, c := range s.children {
		if found := c.findLocked(id); found != nil {
			return found
		}
	}
	return nil
}

// AddAuthentication appends authentications recorded during a forced
// re-authentication of the same principal.
func (s *Session) AddAuthentication(auths ...authn.Authentication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return ErrInvalidatedSession
	}
	s.authentications = append(s.authentications, auths...)
	s.lastUsed = s.factory.clock()
	return nil
}

// Invalidate moves the session to its terminal state, cascading to every
// access (best-effort relying-party notification) and recursively to every
// child session. Idempotent.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

func (s *Session) invalidateLocked() {
	if s.invalidated {
		return
	}
	s.invalidated = true
	for _, a := range s.accesses {
		a.invalidateLocked()
	}
	for _, c := range s.children {
		c.invalidateLocked()
	}
}

// IndexEntry describes one session of a tree for store indexing. Accesses
// lists every token of the session; tokens stay indexed for as long as
// their tree is stored, so a replayed one-shot can be reported as used
// rather than unknown.
type IndexEntry struct {
	SessionID   string
	PrincipalID string
	Accesses    []string
}

// IndexSnapshot walks the tree rooted at s under a single lock acquisition
// and returns the data a store needs to maintain its three indexes.
func (s *Session) IndexSnapshot() []IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []IndexEntry
	s.snapshotLocked(&out)
	return out
}

func (s *Session) snapshotLocked(out *[]IndexEntry) {
	entry := IndexEntry{
		SessionID:   s.id,
		PrincipalID: s.authentications[0].Principal.ID,
	}
	for _, a := range s.accesses {
		entry.Accesses = append(entry.Accesses, a.id)
	}
	*out = append(*out, entry)
	for _, c := range s.children {
		c.snapshotLocked(out)
	}
}
