package cas

import "errors"

var (
	// ErrUnauthorizedService means the target service is not registered.
	ErrUnauthorizedService = errors.New("service not authorized")
	// ErrNotFoundSession means the session id resolved to nothing.
	ErrNotFoundSession = errors.New("session not found")
)
