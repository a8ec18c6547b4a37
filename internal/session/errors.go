package session

import "errors"

var (
	// ErrInvalidatedSession rejects any mutating operation on a session that
	// has been invalidated, and validation of a token whose owning session
	// is invalidated.
	ErrInvalidatedSession = errors.New("session is invalidated")

	// ErrTokenUsed rejects validation of a bounded-use access whose uses are
	// exhausted.
	ErrTokenUsed = errors.New("token already used")

	// ErrTokenExpired rejects validation of an access that outlived its
	// window, or whose owning session expired.
	ErrTokenExpired = errors.New("token expired")
)
