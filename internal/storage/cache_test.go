package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriga-id/casd/internal/session"
)

func TestTreeCache_PinsOneTreePerRoot(t *testing.T) {
	f := session.NewFactory(nil, nil, nil, 0)
	root := newTree(t, f, "alice")
	rec := root.Export()

	loads := 0
	load := func() (*session.Session, error) {
		loads++
		return f.Restore(rec)
	}

	cache := newTreeCache()
	first, err := cache.fetch(root.ID(), load)
	require.NoError(t, err)
	second, err := cache.fetch(root.ID(), load)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loads)

	cache.drop(root.ID())
	third, err := cache.fetch(root.ID(), load)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, loads)
}

// A record-restoring backend must not hand two concurrent validations
// independent copies of one tree: the pinned tree's lock is what makes a
// one-shot token consume exactly once.
func TestTreeCache_SerializesOneShotValidation(t *testing.T) {
	f := session.NewFactory(nil, nil, nil, 0)
	root := newTree(t, f, "alice")
	a := grant(t, root, "https://app.example.org")
	rec := root.Export()

	cache := newTreeCache()
	load := func() (*session.Session, error) { return f.Restore(rec) }

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := cache.fetch(root.ID(), load)
			if err != nil {
				results <- err
				return
			}
			results <- tree.GetAccess(a.ID()).Validate(&session.TokenServiceAccessRequest{
				Token:     a.ID(),
				ServiceID: "https://app.example.org",
			})
		}()
	}
	wg.Wait()
	close(results)

	successes, used := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, session.ErrTokenUsed):
			used++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, used)
}
