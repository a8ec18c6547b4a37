// Package storage persists session trees and maintains the lookup indexes
// the authentication service needs: by session id, by access token and by
// principal.
package storage

import (
	"context"
	"errors"

	"github.com/auriga-id/casd/internal/session"
)

// ErrNotFound is returned when no live session matches a lookup.
var ErrNotFound = errors.New("session not found")

// SessionStorage is the authoritative store for session trees. The root
// session is the persistence unit: Add accepts only roots, Update and
// Delete resolve the root of whatever node they are handed, and lookups
// return the exact node (which may be a delegated session inside a tree).
//
// UpdateSession re-derives the indexes from the tree's current state, so
// newly granted accesses and delegated sessions become resolvable. Tokens
// stay indexed until their tree is deleted; a consumed one-shot must
// remain resolvable so its replay is reported as used, not unknown.
type SessionStorage interface {
	AddSession(ctx context.Context, s *session.Session) error
	UpdateSession(ctx context.Context, s *session.Session) error
	DeleteSession(ctx context.Context, s *session.Session) error

	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	GetSessionByAccessToken(ctx context.Context, token string) (*session.Session, error)
	GetSessionsByPrincipal(ctx context.Context, principalID string) ([]*session.Session, error)

	// RootSessions lists every stored root, for the expiry sweeper.
	RootSessions(ctx context.Context) ([]*session.Session, error)

	Close() error
}

// findOwningSession resolves the node of the tree that granted the token.
func findOwningSession(root *session.Session, token string) (*session.Session, error) {
	for _, entry := range root.IndexSnapshot() {
		for _, id := range entry.Accesses {
			if id == token {
				return root.Find(entry.SessionID), nil
			}
		}
	}
	return nil, ErrNotFound
}
