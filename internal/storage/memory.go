package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/auriga-id/casd/internal/session"
)

// MemoryStorage is an in-process SessionStorage. Suitable for a single
// node; the redis and postgres backends cover shared deployments.
type MemoryStorage struct {
	mu sync.RWMutex

	trees      map[string]*session.Session // root id -> root session
	sessions   map[string]string           // session id -> root id
	tokens     map[string]string           // access id -> root id
	principals map[string]map[string]struct{}

	// indexed remembers which keys each tree contributed, so an update can
	// unlink stale entries before re-deriving.
	indexed map[string]treeIndex
}

type treeIndex struct {
	sessions    []string
	tokens      []string
	principalID string
}

var _ SessionStorage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		trees:      make(map[string]*session.Session),
		sessions:   make(map[string]string),
		tokens:     make(map[string]string),
		principals: make(map[string]map[string]struct{}),
		indexed:    make(map[string]treeIndex),
	}
}

func (m *MemoryStorage) AddSession(_ context.Context, s *session.Session) error {
	if !s.IsRoot() {
		return fmt.Errorf("only root sessions can be added: %s", s.ID())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trees[s.ID()]; exists {
		return fmt.Errorf("session already stored: %s", s.ID())
	}
	m.trees[s.ID()] = s
	m.indexLocked(s)
	return nil
}

func (m *MemoryStorage) UpdateSession(_ context.Context, s *session.Session) error {
	root := s.Root()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trees[root.ID()]; !exists {
		return ErrNotFound
	}
	m.unindexLocked(root.ID())
	m.indexLocked(root)
	return nil
}

func (m *MemoryStorage) DeleteSession(_ context.Context, s *session.Session) error {
	root := s.Root()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trees[root.ID()]; !exists {
		return nil
	}
	m.unindexLocked(root.ID())
	delete(m.trees, root.ID())
	return nil
}

func (m *MemoryStorage) GetSession(_ context.Context, sessionID string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rootID, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	found := m.trees[rootID].Find(sessionID)
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStorage) GetSessionByAccessToken(_ context.Context, token string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rootID, ok := m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	root := m.trees[rootID]
	return findOwningSession(root, token)
}

func (m *MemoryStorage) GetSessionsByPrincipal(_ context.Context, principalID string) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roots := m.principals[principalID]
	out := make([]*session.Session, 0, len(roots))
	for rootID := range roots {
		out = append(out, m.trees[rootID])
	}
	return out, nil
}

func (m *MemoryStorage) RootSessions(_ context.Context) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.trees))
	for _, root := range m.trees {
		out = append(out, root)
	}
	return out, nil
}

func (m *MemoryStorage) Close() error { return nil }

// indexLocked derives all index entries for the tree from a single
// snapshot.
func (m *MemoryStorage) indexLocked(root *session.Session) {
	idx := treeIndex{principalID: root.Principal().ID}
	for _, entry := range root.IndexSnapshot() {
		m.sessions[entry.SessionID] = root.ID()
		idx.sessions = append(idx.sessions, entry.SessionID)
		for _, token := range entry.Accesses {
			m.tokens[token] = root.ID()
			idx.tokens = append(idx.tokens, token)
		}
	}
	set, ok := m.principals[idx.principalID]
	if !ok {
		set = make(map[string]struct{})
		m.principals[idx.principalID] = set
	}
	set[root.ID()] = struct{}{}
	m.indexed[root.ID()] = idx
}

func (m *MemoryStorage) unindexLocked(rootID string) {
	idx, ok := m.indexed[rootID]
	if !ok {
		return
	}
	for _, id := range idx.sessions {
		delete(m.sessions, id)
	}
	for _, token := range idx.tokens {
		delete(m.tokens, token)
	}
	if set := m.principals[idx.principalID]; set != nil {
		delete(set, rootID)
		if len(set) == 0 {
			delete(m.principals, idx.principalID)
		}
	}
	delete(m.indexed, rootID)
}
