package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/session"
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

func newTree(t *testing.T, f *session.Factory, principalID string) *session.Session {
	t.Helper()
	root, err := f.NewRootSession(authResponse(principalID))
	require.NoError(t, err)
	return root
}

func grant(t *testing.T, s *session.Session, serviceID string) *session.Access {
	t.Helper()
	a, err := s.Grant(&session.ServiceAccessRequest{
		ServiceID: serviceID,
		SessionID: s.ID(),
		Protocol:  session.ProtocolCAS2,
	})
	require.NoError(t, err)
	return a
}

func TestMemoryStorage_AddAndGet(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	require.NoError(t, store.AddSession(ctx, root))

	got, err := store.GetSession(ctx, root.ID())
	require.NoError(t, err)
	assert.Same(t, root, got)

	_, err = store.GetSession(ctx, "TGT-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_RejectsNonRootAdd(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	st := grant(t, root, "https://proxy.example.org")
	child, err := st.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)

	assert.Error(t, store.AddSession(ctx, child))
}

func TestMemoryStorage_TokenIndexFollowsUpdates(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	require.NoError(t, store.AddSession(ctx, root))

	// Token granted after Add is unknown until the tree is re-indexed.
	a := grant(t, root, "https://app.example.org")
	_, err := store.GetSessionByAccessToken(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpdateSession(ctx, root))
	got, err := store.GetSessionByAccessToken(ctx, a.ID())
	require.NoError(t, err)
	assert.Same(t, root, got)

	// A consumed one-shot stays resolvable so its replay can be reported
	// as used rather than unknown.
	require.NoError(t, a.Validate(&session.TokenServiceAccessRequest{Token: a.ID(), ServiceID: "https://app.example.org"}))
	require.NoError(t, store.UpdateSession(ctx, root))
	got, err = store.GetSessionByAccessToken(ctx, a.ID())
	require.NoError(t, err)
	assert.Same(t, root, got)
}

func TestMemoryStorage_DelegatedSessionResolvable(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	require.NoError(t, store.AddSession(ctx, root))

	st := grant(t, root, "https://proxy.example.org")
	child, err := st.CreateDelegatedSession(authResponse("https://proxy.example.org"))
	require.NoError(t, err)
	require.NoError(t, store.UpdateSession(ctx, child))

	got, err := store.GetSession(ctx, child.ID())
	require.NoError(t, err)
	assert.Same(t, child, got)
}

func TestMemoryStorage_PrincipalIndex(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	first := newTree(t, f, "alice")
	second := newTree(t, f, "alice")
	other := newTree(t, f, "bob")
	require.NoError(t, store.AddSession(ctx, first))
	require.NoError(t, store.AddSession(ctx, second))
	require.NoError(t, store.AddSession(ctx, other))

	sessions, err := store.GetSessionsByPrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	sessions, err = store.GetSessionsByPrincipal(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMemoryStorage_Delete(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	require.NoError(t, store.AddSession(ctx, root))
	a := grant(t, root, "https://app.example.org")
	require.NoError(t, store.UpdateSession(ctx, root))

	require.NoError(t, store.DeleteSession(ctx, root))

	_, err := store.GetSession(ctx, root.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSessionByAccessToken(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	sessions, err := store.GetSessionsByPrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Deleting an unknown tree is a no-op.
	assert.NoError(t, store.DeleteSession(ctx, root))
}

func TestMemoryStorage_UpdateUnknownTree(t *testing.T) {
	ctx := context.Background()
	f := session.NewFactory(nil, nil, nil, 0)
	store := NewMemoryStorage()

	root := newTree(t, f, "alice")
	assert.ErrorIs(t, store.UpdateSession(ctx, root), ErrNotFound)
}
