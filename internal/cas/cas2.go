package cas

import (
	"fmt"
	"sort"
	"strings"

	"github.com/auriga-id/casd/internal/session"
)

// CAS2Factory encodes the XML serviceResponse format. It also serves
// saml11-tagged requests: those share the encoding and differ only in
// their self-validating usage policy.
type CAS2Factory struct{}

var _ ResponseFactory = CAS2Factory{}

func (CAS2Factory) SupportsProtocol(p session.Protocol) bool {
	return p == session.ProtocolCAS2 || p == session.ProtocolSAML11
}

func (CAS2Factory) SupportsAccess(a *session.Access) bool {
	return a != nil && (a.Protocol() == session.ProtocolCAS2 || a.Protocol() == session.ProtocolSAML11)
}

func (CAS2Factory) Success(res Result) *ServiceAccessResponse {
	principal := res.Session.Principal()
	resp := &ServiceAccessResponse{
		Protocol:          session.ProtocolCAS2,
		Success:           true,
		SessionID:         res.Session.ID(),
		PrincipalID:       principal.ID,
		Attributes:        principal.Attributes,
		RemainingAccesses: res.RemainingAccesses,
	}
	if res.Access != nil {
		resp.Token = res.Access.ID()
	}
	if res.DelegatedSession != nil {
		resp.DelegatedSessionID = res.DelegatedSession.ID()
	}

	var b strings.Builder
	b.WriteString(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">`)
	b.WriteString(`<cas:authenticationSuccess>`)
	fmt.Fprintf(&b, `<cas:user>%s</cas:user>`, xmlEscape(principal.ID))
	writeAttributes(&b, principal.Attributes)
	if resp.DelegatedSessionID != "" {
		fmt.Fprintf(&b, `<cas:proxyGrantingTicket>%s</cas:proxyGrantingTicket>`, xmlEscape(resp.DelegatedSessionID))
	}
	b.WriteString(`</cas:authenticationSuccess>`)
	b.WriteString(`</cas:serviceResponse>`)
	resp.Body = b.String()
	return resp
}

func (CAS2Factory) Failure(code ErrorCode, message string) *ServiceAccessResponse {
	var b strings.Builder
	b.WriteString(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">`)
	fmt.Fprintf(&b, `<cas:authenticationFailure code="%s">%s</cas:authenticationFailure>`,
		xmlEscape(string(code)), xmlEscape(message))
	b.WriteString(`</cas:serviceResponse>`)
	return &ServiceAccessResponse{
		Protocol:  session.ProtocolCAS2,
		ErrorCode: code,
		ErrorText: message,
		Body:      b.String(),
	}
}

func writeAttributes(b *strings.Builder, attrs map[string][]string) {
	if len(attrs) == 0 {
		return
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString(`<cas:attributes>`)
	for _, name := range names {
		for _, value := range attrs[name] {
			fmt.Fprintf(b, `<cas:%s>%s</cas:%s>`, name, xmlEscape(value), name)
		}
	}
	b.WriteString(`</cas:attributes>`)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }
