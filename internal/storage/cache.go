package storage

import (
	"sync"

	"github.com/auriga-id/casd/internal/session"
)

// treeCache pins live session trees in memory so that every lookup of the
// same root returns the same tree, and with it the same tree lock. The
// redis and postgres backends restore trees from stored records; without
// pinning, two concurrent validations would each restore an independent
// copy with its own lock, and the per-tree serialization that makes a
// bounded-use token consume exactly once would not hold.
type treeCache struct {
	mu    sync.Mutex
	trees map[string]*session.Session
}

func newTreeCache() *treeCache {
	return &treeCache{trees: make(map[string]*session.Session)}
}

// fetch returns the pinned tree for rootID, loading and pinning it on
// first use. Concurrent fetches of one root observe the same pointer; the
// loader runs at most once per pinned lifetime.
func (c *treeCache) fetch(rootID string, load func() (*session.Session, error)) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if root, ok := c.trees[rootID]; ok {
		return root, nil
	}
	root, err := load()
	if err != nil {
		return nil, err
	}
	c.trees[rootID] = root
	return root, nil
}

// pin records a freshly added tree so later lookups return it rather than
// a restored copy.
func (c *treeCache) pin(rootID string, root *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[rootID] = root
}

func (c *treeCache) drop(rootID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trees, rootID)
}
