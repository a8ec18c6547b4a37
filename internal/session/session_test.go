package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriga-id/casd/internal/authn"
)

func authResponse(principalID string) *authn.Response {
	return &authn.Response{
		Succeeded: true,
		Principal: &authn.Principal{ID: principalID},
		Authentications: []authn.Authentication{{
			Principal: authn.Principal{ID: principalID},
			Date:      time.Now(),
			Method:    "password",
		}},
	}
}

func newTestFactory(opts ...FactoryOption) *Factory {
	return NewFactory(UUIDGenerator{}, NopNotifier{}, NeverExpires{}, 0, opts...)
}

func grantRequest(serviceID string) *ServiceAccessRequest {
	return &ServiceAccessRequest{ServiceID: serviceID, SessionID: "ignored", Protocol: ProtocolCAS2}
}

func TestNewRootSession(t *testing.T) {
	f := newTestFactory()

	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	assert.True(t, s.IsRoot())
	assert.True(t, s.IsValid())
	assert.Contains(t, s.ID(), PrefixSession+"-")
	assert.Equal(t, "alice", s.Principal().ID)
}

func TestNewRootSession_FailedAuthentication(t *testing.T) {
	f := newTestFactory()

	_, err := f.NewRootSession(&authn.Response{Succeeded: false})
	assert.Error(t, err)

	_, err = f.NewRootSession(nil)
	assert.Error(t, err)
}

func TestGrant_MintsUniqueTokens(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	a1, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)
	a2, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	assert.NotEqual(t, a1.ID(), a2.ID())
	assert.Contains(t, a1.ID(), PrefixAccess+"-")
	assert.Equal(t, s.ID(), a1.OwningSessionID())
	assert.Equal(t, BoundedUses, a1.Policy().Kind)
	assert.Equal(t, 1, a1.Policy().Uses)
}

func TestGrant_ProxiedPrefix(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	a, err := s.Grant(&ServiceAccessRequest{
		ServiceID: "https://backend.example.org",
		SessionID: s.ID(),
		Protocol:  ProtocolCAS2,
		Proxied:   true,
	})
	require.NoError(t, err)
	assert.Contains(t, a.ID(), PrefixProxyAccess+"-")
}

func TestGrant_SAMLIsSelfValidating(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	a, err := s.Grant(&ServiceAccessRequest{
		ServiceID: "https://app.example.org",
		SessionID: s.ID(),
		Protocol:  ProtocolSAML11,
	})
	require.NoError(t, err)
	assert.Equal(t, SelfValidating, a.Policy().Kind)
}

func TestGrant_AfterInvalidation(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	s.Invalidate()

	_, err = s.Grant(grantRequest("https://app.example.org"))
	assert.ErrorIs(t, err, ErrInvalidatedSession)
}

func TestInvalidate_CascadesThroughTree(t *testing.T) {
	f := newTestFactory()
	root, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	access, err := root.Grant(grantRequest("https://proxy.example.org"))
	require.NoError(t, err)
	child, err := access.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)
	grandAccess, err := child.Grant(grantRequest("https://backend.example.org"))
	require.NoError(t, err)
	grandchild, err := grandAccess.CreateDelegatedSession(authResponse("https://backend.example.org"))
	require.NoError(t, err)

	root.Invalidate()

	assert.True(t, root.IsInvalidated())
	assert.True(t, child.IsInvalidated())
	assert.True(t, grandchild.IsInvalidated())

	_, err = child.Grant(grantRequest("https://other.example.org"))
	assert.ErrorIs(t, err, ErrInvalidatedSession)
}

func TestInvalidate_Idempotent(t *testing.T) {
	notifier := &countingNotifier{}
	f := NewFactory(UUIDGenerator{}, notifier, NeverExpires{}, 0)
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	_, err = s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	s.Invalidate()
	s.Invalidate()

	assert.Equal(t, 1, notifier.calls)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (n *countingNotifier) DestroyLocalSession(resourceID, accessID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return !n.fail
}

func TestRoot_WalksDelegationChain(t *testing.T) {
	f := newTestFactory()
	root, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	access, err := root.Grant(grantRequest("https://proxy.example.org"))
	require.NoError(t, err)
	child, err := access.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)

	assert.Contains(t, child.ID(), PrefixDelegatedSession+"-")
	assert.False(t, child.IsRoot())
	assert.Same(t, root, child.Root())
	assert.Same(t, access, child.ParentAccess())
	assert.Same(t, child, root.Find(child.ID()))
	assert.Nil(t, root.Find("TGT-missing"))
}

func TestAddAuthentication(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	err = s.AddAuthentication(authn.Authentication{
		Principal: authn.Principal{ID: "alice"},
		Date:      time.Now(),
		Method:    "otp",
	})
	require.NoError(t, err)
	assert.Len(t, s.Authentications(), 2)

	s.Invalidate()
	err = s.AddAuthentication(authn.Authentication{Principal: authn.Principal{ID: "alice"}})
	assert.ErrorIs(t, err, ErrInvalidatedSession)
}

func TestIsValid_Expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	f := NewFactory(UUIDGenerator{}, NopNotifier{}, SlidingWindowPolicy{Window: time.Hour}, 0, WithClock(clock))

	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	assert.True(t, s.IsValid())

	now = now.Add(2 * time.Hour)
	assert.False(t, s.IsValid())
	assert.False(t, s.IsInvalidated())
}

func TestGrant_TouchesLastUsed(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	f := NewFactory(UUIDGenerator{}, NopNotifier{}, SlidingWindowPolicy{Window: time.Hour}, 0, WithClock(clock))

	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	_, err = s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	assert.True(t, s.IsValid())
}

func TestIndexSnapshot(t *testing.T) {
	f := newTestFactory()
	root, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	st, err := root.Grant(grantRequest("https://proxy.example.org"))
	require.NoError(t, err)
	child, err := st.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)
	_, err = child.Grant(grantRequest("https://backend.example.org"))
	require.NoError(t, err)

	entries := root.IndexSnapshot()
	require.Len(t, entries, 2)

	byID := make(map[string]IndexEntry, len(entries))
	for _, e := range entries {
		byID[e.SessionID] = e
	}
	require.Contains(t, byID, root.ID())
	require.Contains(t, byID, child.ID())
	assert.Equal(t, "alice", byID[root.ID()].PrincipalID)
	require.Len(t, byID[root.ID()].Accesses, 1)
	assert.Equal(t, st.ID(), byID[root.ID()].Accesses[0])
}

func TestExportRestore_RoundTrip(t *testing.T) {
	f := newTestFactory()
	root, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)

	st, err := root.Grant(grantRequest("https://proxy.example.org"))
	require.NoError(t, err)
	require.NoError(t, st.Validate(&TokenServiceAccessRequest{Token: st.ID(), ServiceID: "https://proxy.example.org"}))
	child, err := st.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)
	pt, err := child.Grant(grantRequest("https://backend.example.org"))
	require.NoError(t, err)

	rec := root.Export()

	restored, err := f.Restore(rec)
	require.NoError(t, err)

	assert.Equal(t, root.ID(), restored.ID())
	assert.Equal(t, "alice", restored.Principal().ID)

	restoredChild := restored.Find(child.ID())
	require.NotNil(t, restoredChild)
	assert.Same(t, restored, restoredChild.Root())

	restoredST := restored.GetAccess(st.ID())
	require.NotNil(t, restoredST)
	assert.True(t, restoredST.IsUsed())
	assert.ErrorIs(t, restoredST.Validate(&TokenServiceAccessRequest{Token: st.ID(), ServiceID: "https://proxy.example.org"}), ErrTokenUsed)

	restoredPT := restoredChild.GetAccess(pt.ID())
	require.NotNil(t, restoredPT)
	assert.NoError(t, restoredPT.Validate(&TokenServiceAccessRequest{Token: pt.ID(), ServiceID: "https://backend.example.org"}))
}

func TestRestore_RejectsChildRecord(t *testing.T) {
	f := newTestFactory()
	_, err := f.Restore(Record{ID: "PGT-x", ParentAccessID: "ST-y"})
	assert.Error(t, err)
}
