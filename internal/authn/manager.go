package authn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoHandler means no configured handler supports a submitted credential.
	ErrNoHandler = errors.New("no handler supports credential")
	// ErrBadCredentials is the generic rejection; handlers return it instead
	// of anything that would allow account enumeration.
	ErrBadCredentials = errors.New("invalid credentials")
)

// Handler resolves a single credential to a principal. Handlers must not
// mutate session state; they may perform bounded I/O (the caller's context
// carries the deadline).
type Handler interface {
	// Name identifies the handler in failure maps and audit logs.
	Name() string
	// Supports reports whether this handler can resolve the credential.
	Supports(c Credential) bool
	// Authenticate resolves the credential. On success it returns the
	// principal and any attributes released by the identity source.
	Authenticate(ctx context.Context, c Credential) (*Principal, map[string][]string, error)
}

// Request asks the manager to resolve a set of credentials.
type Request struct {
	Credentials []Credential
	LongTerm    bool
}

// Response is the outcome of an authentication attempt. Failures travel
// in-band: a rejected credential never surfaces as a Go error from
// Manager.Authenticate.
type Response struct {
	Succeeded       bool
	Principal       *Principal
	Authentications []Authentication
	// Failures maps handler name (or credential kind when no handler
	// supported it) to the rejection.
	Failures   map[string]error
	Attributes map[string][]string
	LongTerm   bool
}

// Manager composes an ordered list of handlers. For each credential the
// first handler whose Supports returns true is invoked; all credentials
// must succeed for the response to succeed. Partial failures are recorded
// but do not short-circuit the remaining credentials.
type Manager struct {
	handlers []Handler
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a manager over the given handlers, consulted in order.
func NewManager(handlers []Handler, opts ...ManagerOption) *Manager {
	m := &Manager{
		handlers: handlers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticate resolves every credential in the request. The returned
// response succeeds only when all credentials resolved and at least one
// produced a principal. Resolved principals must agree; a mismatch is a
// failure (two credentials claiming different identities).
func (m *Manager) Authenticate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Credentials) == 0 {
		return nil, fmt.Errorf("authentication request requires at least one credential")
	}

	resp := &Response{
		Succeeded: true,
		Failures:  make(map[string]error),
		LongTerm:  req.LongTerm,
	}

	for _, cred := range req.Credentials {
		handler := m.findHandler(cred)
		if handler == nil {
			resp.Succeeded = false
			resp.Failures[cred.Kind()] = ErrNoHandler
			continue
		}

		principal, attrs, err := handler.Authenticate(ctx, cred)
		if err != nil {
			resp.Succeeded = false
			resp.Failures[handler.Name()] = err
			continue
		}

		if resp.Principal == nil {
			resp.Principal = principal
		} else if !resp.Principal.Equal(principal) {
			resp.Succeeded = false
			resp.Failures[handler.Name()] = fmt.Errorf("principal mismatch: %q vs %q", resp.Principal.ID, principal.ID)
			continue
		}

		resp.Authentications = append(resp.Authentications, Authentication{
			Principal:  *principal,
			Date:       m.now(),
			Method:     handler.Name(),
			Attributes: attrs,
		})
		resp.Attributes = mergeAttributes(resp.Attributes, attrs)
	}

	if resp.Principal == nil {
		resp.Succeeded = false
	}
	if !resp.Succeeded {
		resp.Principal = nil
		resp.Authentications = nil
	}
	return resp, nil
}

func (m *Manager) findHandler(c Credential) Handler {
	for _, h := range m.handlers {
		if h.Supports(c) {
			return h
		}
	}
	return nil
}
