package session

import "github.com/auriga-id/casd/internal/authn"

// Protocol tags a request or access with the response encoding the relying
// party speaks. The tag is what binds an access to its response factory
// and its usage policy.
type Protocol string

const (
	ProtocolCAS1 Protocol = "cas1"
	ProtocolCAS2 Protocol = "cas2"
	// ProtocolSAML11 marks self-validating accesses: the assertion is
	// assumed consumed on issue, so validation never mutates state.
	ProtocolSAML11 Protocol = "saml11"
)

// ServiceAccessRequest asks a session to grant an access for a target
// service.
type ServiceAccessRequest struct {
	ServiceID string
	SessionID string
	Protocol  Protocol

	Credentials          []authn.Credential
	ForceAuthentication  bool
	LongTermLoginRequest bool

	// Proxied marks requests issued by a relying party on behalf of a user
	// (proxy tickets). Failures on proxied requests become protocol
	// responses instead of surfaced errors.
	Proxied bool
}

// IsValid performs shape-level validation only; business rules live in the
// orchestrator.
func (r *ServiceAccessRequest) IsValid() bool {
	if r == nil || r.ServiceID == "" {
		return false
	}
	if r.ForceAuthentication && len(r.Credentials) == 0 {
		return false
	}
	return r.SessionID != ""
}

// TokenServiceAccessRequest asks the authority to validate a previously
// issued access token. Credentials, when present, request a delegated
// (proxy-granting) session.
type TokenServiceAccessRequest struct {
	Token     string
	ServiceID string
	Protocol  Protocol

	Credentials []authn.Credential
}

// IsValid performs shape-level validation only.
func (r *TokenServiceAccessRequest) IsValid() bool {
	return r != nil && r.Token != "" && r.ServiceID != ""
}
