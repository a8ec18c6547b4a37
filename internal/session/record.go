package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/auriga-id/casd/internal/authn"
)

// AccessRecord is the serialized form of an Access.
type AccessRecord struct {
	ID                    string     `json:"id"`
	ResourceID            string     `json:"resource_id"`
	Protocol              Protocol   `json:"protocol"`
	PolicyKind            PolicyKind `json:"policy_kind"`
	PolicyUses            int        `json:"policy_uses,omitempty"`
	Remaining             int        `json:"remaining,omitempty"`
	Created               time.Time  `json:"created"`
	Used                  bool       `json:"used,omitempty"`
	LocalSessionDestroyed bool       `json:"local_session_destroyed,omitempty"`
}

// Record is the serialized form of a session node. A root session's record
// nests its whole tree; ParentAccessID links a child node to the access in
// its parent that spawned it.
type Record struct {
	ID              string                 `json:"id"`
	ParentAccessID  string                 `json:"parent_access_id,omitempty"`
	Authentications []authn.Authentication `json:"authentications"`
	Accesses        []AccessRecord         `json:"accesses,omitempty"`
	Children        []Record               `json:"children,omitempty"`
	Created         time.Time              `json:"created"`
	LastUsed        time.Time              `json:"last_used"`
	LongTerm        bool                   `json:"long_term,omitempty"`
	Invalidated     bool                   `json:"invalidated,omitempty"`
}

// Export serializes the tree rooted at s under a single lock acquisition.
// Export on a non-root session exports the full tree anyway; the root is
// the persistence unit.
func (s *Session) Export() Record {
	root := s.Root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.exportLocked()
}

func (s *Session) exportLocked() Record {
	rec := Record{
		ID:              s.id,
		Authentications: append([]authn.Authentication(nil), s.authentications...),
		Created:         s.created,
		LastUsed:        s.lastUsed,
		LongTerm:        s.longTerm,
		Invalidated:     s.invalidated,
	}
	if s.parent != nil {
		rec.ParentAccessID = s.parent.id
	}
	for _, a := range s.accesses {
		rec.Accesses = append(rec.Accesses, AccessRecord{
			ID:                    a.id,
			ResourceID:            a.resourceID,
			Protocol:              a.protocol,
			PolicyKind:            a.policy.Kind,
			PolicyUses:            a.policy.Uses,
			Remaining:             a.remaining,
			Created:               a.created,
			Used:                  a.used,
			LocalSessionDestroyed: a.localSessionDestroyed,
		})
	}
	for _, c := range s.children {
		rec.Children = append(rec.Children, c.exportLocked())
	}
	return rec
}

// Restore rebuilds a session tree from its exported record, rebinding it
// to this factory's clock, policy and notifier.
func (f *Factory) Restore(rec Record) (*Session, error) {
	if rec.ParentAccessID != "" {
		return nil, fmt.Errorf("restore requires a root record, got child of access %s", rec.ParentAccessID)
	}
	return f.restoreNode(rec, &sync.Mutex{}, nil)
}

func (f *Factory) restoreNode(rec Record, mu *sync.Mutex, parent *Access) (*Session, error) {
	if len(rec.Authentications) == 0 {
		return nil, fmt.Errorf("record %s has no authentications", rec.ID)
	}
	s := &Session{
		mu:              mu,
		id:              rec.ID,
		parent:          parent,
		factory:         f,
		authentications: append([]authn.Authentication(nil), rec.Authentications...),
		accesses:        make(map[string]*Access, len(rec.Accesses)),
		children:        make(map[string]*Session, len(rec.Children)),
		created:         rec.Created,
		lastUsed:        rec.LastUsed,
		longTerm:        rec.LongTerm,
		invalidated:     rec.Invalidated,
	}
	for _, ar := range rec.Accesses {
		s.accesses[ar.ID] = &Access{
			id:                    ar.ID,
			resourceID:            ar.ResourceID,
			protocol:              ar.Protocol,
			session:               s,
			policy:                UsagePolicy{Kind: ar.PolicyKind, Uses: ar.PolicyUses},
			remaining:             ar.Remaining,
			created:               ar.Created,
			used:                  ar.Used,
			localSessionDestroyed: ar.LocalSessionDestroyed,
		}
	}
	for _, cr := range rec.Children {
		pa := s.accesses[cr.ParentAccessID]
		if pa == nil {
			return nil, fmt.Errorf("record %s references unknown parent access %s", cr.ID, cr.ParentAccessID)
		}
		child, err := f.restoreNode(cr, mu, pa)
		if err != nil {
			return nil, err
		}
		s.children[child.id] = child
	}
	return s, nil
}
