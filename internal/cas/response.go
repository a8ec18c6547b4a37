package cas

import (
	"fmt"

	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/session"
)

// LoginRequest carries the credentials of a login attempt.
type LoginRequest struct {
	Credentials []authn.Credential
	LongTerm    bool
}

// LoginResponse is the outcome of a login. Session is nil when
// authentication failed; Auth always carries the in-band result.
type LoginResponse struct {
	Session *session.Session
	Auth    *authn.Response
}

// Succeeded reports whether a session was established.
func (r *LoginResponse) Succeeded() bool { return r != nil && r.Session != nil }

// LogoutResponse lists the sessions destroyed by a logout call.
type LogoutResponse struct {
	Sessions []*session.Session
}

// ErrorCode is the protocol-level error tag carried by failure responses.
type ErrorCode string

const (
	CodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	CodeInvalidToken          ErrorCode = "INVALID_TICKET"
	CodeInvalidService        ErrorCode = "INVALID_SERVICE"
	CodeAuthenticationFailure ErrorCode = "AUTHENTICATION_FAILURE"
)

// Result is the material a factory encodes into a success response.
type Result struct {
	Session           *session.Session
	Access            *session.Access
	Auth              *authn.Response
	DelegatedSession  *session.Session
	RemainingAccesses []string
}

// ServiceAccessResponse is the protocol-agnostic shape of a grant or
// validate outcome; Body holds the encoded protocol payload.
type ServiceAccessResponse struct {
	Protocol session.Protocol
	Success  bool

	SessionID   string
	PrincipalID string
	Attributes  map[string][]string
	Token       string

	// DelegatedSessionID is set when the validation minted a delegated
	// session for the relying party.
	DelegatedSessionID string
	// RemainingAccesses lists the resources of the outstanding accesses of
	// a session destroyed by a forced re-authentication.
	RemainingAccesses []string

	ErrorCode ErrorCode
	ErrorText string

	Body string
}

// ResponseFactory encodes outcomes for one or more protocols.
type ResponseFactory interface {
	// SupportsProtocol reports whether the factory encodes responses for
	// requests tagged with the protocol.
	SupportsProtocol(p session.Protocol) bool
	// SupportsAccess reports whether the factory encodes responses for an
	// already granted access.
	SupportsAccess(a *session.Access) bool

	Success(res Result) *ServiceAccessResponse
	Failure(code ErrorCode, message string) *ServiceAccessResponse
}

// ResponseRegistry is the ordered factory list. Lookup returns the first
// match; no match is a wiring bug and panics.
type ResponseRegistry struct {
	factories []ResponseFactory
}

// NewResponseRegistry builds a registry over the factories, consulted in
// order.
func NewResponseRegistry(factories ...ResponseFactory) *ResponseRegistry {
	if len(factories) == 0 {
		panic("response registry requires at least one factory")
	}
	return &ResponseRegistry{factories: factories}
}

// ForProtocol returns the first factory supporting the protocol. An empty
// protocol falls back to the first registered factory.
func (r *ResponseRegistry) ForProtocol(p session.Protocol) ResponseFactory {
	if p == "" {
		return r.factories[0]
	}
	for _, f := range r.factories {
		if f.SupportsProtocol(p) {
			return f
		}
	}
	panic(fmt.Sprintf("no response factory supports protocol %q", p))
}

// ForAccess returns the first factory supporting the access. Success
// responses are encoded by the factory of the access as granted, not of
// the validating request.
func (r *ResponseRegistry) ForAccess(a *session.Access) ResponseFactory {
	for _, f := range r.factories {
		if f.SupportsAccess(a) {
			return f
		}
	}
	if a == nil {
		panic("no response factory supports a nil access")
	}
	panic(fmt.Sprintf("no response factory supports access %q", a.ID()))
}
