package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OneShot(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	req := &TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"}

	require.NoError(t, a.Validate(req))
	assert.True(t, a.IsUsed())
	assert.ErrorIs(t, a.Validate(req), ErrTokenUsed)
}

func TestValidate_BoundedUsesExactlyOnceUnderContention(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	const attempts = 64
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"})
		}()
	}
	wg.Wait()
	close(results)

	successes, used := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrTokenUsed):
			used++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, used)
}

func TestValidate_SelfValidatingNeverConsumes(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(&ServiceAccessRequest{
		ServiceID: "https://app.example.org",
		SessionID: s.ID(),
		Protocol:  ProtocolSAML11,
	})
	require.NoError(t, err)

	req := &TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"}
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Validate(req))
	}
	assert.False(t, a.IsUsed())
	assert.True(t, a.RequiresStorage())
}

func TestValidate_InvalidatedSessionWins(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	s.Invalidate()

	err = a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"})
	assert.ErrorIs(t, err, ErrInvalidatedSession)
	assert.False(t, a.IsUsed())
}

func TestValidate_AccessExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	f := NewFactory(UUIDGenerator{}, NopNotifier{}, NeverExpires{}, 10*time.Second, WithClock(clock))

	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	now = now.Add(11 * time.Second)
	err = a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, a.IsUsed())
}

func TestValidate_SessionExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	f := NewFactory(UUIDGenerator{}, NopNotifier{}, HardTimeoutPolicy{TTL: time.Hour}, 0, WithClock(clock))

	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	err = a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"})
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRequiresStorage_SurvivesConsumption(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	assert.True(t, a.RequiresStorage())
	require.NoError(t, a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"}))

	// A consumed one-shot must stay resolvable so a replay answers
	// ErrTokenUsed instead of disappearing from the store.
	assert.True(t, a.RequiresStorage())
	assert.ErrorIs(t, a.Validate(&TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"}), ErrTokenUsed)
}

func TestInvalidate_NotifiesOnce(t *testing.T) {
	notifier := &countingNotifier{}
	f := NewFactory(UUIDGenerator{}, notifier, NeverExpires{}, 0)
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	assert.True(t, a.Invalidate())
	assert.True(t, a.Invalidate())
	assert.Equal(t, 1, notifier.calls)
	assert.True(t, a.IsLocalSessionDestroyed())
}

func TestInvalidate_NotificationFailureRetriesOnNextCall(t *testing.T) {
	notifier := &countingNotifier{fail: true}
	f := NewFactory(UUIDGenerator{}, notifier, NeverExpires{}, 0)
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://app.example.org"))
	require.NoError(t, err)

	assert.False(t, a.Invalidate())
	assert.False(t, a.IsLocalSessionDestroyed())

	notifier.fail = false
	assert.True(t, a.Invalidate())
	assert.Equal(t, 2, notifier.calls)
}

func TestCreateDelegatedSession_OnInvalidatedSession(t *testing.T) {
	f := newTestFactory()
	s, err := f.NewRootSession(authResponse("alice"))
	require.NoError(t, err)
	a, err := s.Grant(grantRequest("https://proxy.example.org"))
	require.NoError(t, err)

	s.Invalidate()

	_, err = a.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	assert.ErrorIs(t, err, ErrInvalidatedSession)
}
