package cas

import "github.com/auriga-id/casd/internal/session"

// CAS1Factory encodes the legacy plain-text validation format: "yes" plus
// the principal on success, "no" on failure. The format carries no
// attributes, error codes or proxy material.
type CAS1Factory struct{}

var _ ResponseFactory = CAS1Factory{}

func (CAS1Factory) SupportsProtocol(p session.Protocol) bool {
	return p == session.ProtocolCAS1
}

func (CAS1Factory) SupportsAccess(a *session.Access) bool {
	return a != nil && a.Protocol() == session.ProtocolCAS1
}

func (CAS1Factory) Success(res Result) *ServiceAccessResponse {
	principal := res.Session.Principal()
	resp := &ServiceAccessResponse{
		Protocol:          session.ProtocolCAS1,
		Success:           true,
		SessionID:         res.Session.ID(),
		PrincipalID:       principal.ID,
		RemainingAccesses: res.RemainingAccesses,
		Body:              "yes\n" + principal.ID + "\n",
	}
	if res.Access != nil {
		resp.Token = res.Access.ID()
	}
	return resp
}

func (CAS1Factory) Failure(code ErrorCode, message string) *ServiceAccessResponse {
	return &ServiceAccessResponse{
		Protocol:  session.ProtocolCAS1,
		ErrorCode: code,
		ErrorText: message,
		Body:      "no\n\n",
	}
}
