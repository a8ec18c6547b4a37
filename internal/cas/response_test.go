package cas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/session"
)

func sessionFor(t *testing.T, principalID string, attrs map[string][]string) *session.Session {
	t.Helper()
	f := session.NewFactory(nil, nil, nil, 0)
	s, err := f.NewRootSession(&authn.Response{
		Succeeded: true,
		Principal: &authn.Principal{ID: principalID, Attributes: attrs},
		Authentications: []authn.Authentication{{
			Principal: authn.Principal{ID: principalID, Attributes: attrs},
			Date:      time.Now(),
			Method:    "password",
		}},
	})
	require.NoError(t, err)
	return s
}

func TestCAS1Factory(t *testing.T) {
	s := sessionFor(t, "alice", nil)

	success := CAS1Factory{}.Success(Result{Session: s})
	assert.True(t, success.Success)
	assert.Equal(t, "yes\nalice\n", success.Body)

	failure := CAS1Factory{}.Failure(CodeInvalidToken, "token already used")
	assert.False(t, failure.Success)
	assert.Equal(t, "no\n\n", failure.Body)
	assert.Equal(t, CodeInvalidToken, failure.ErrorCode)
}

func TestCAS2Factory_Success(t *testing.T) {
	s := sessionFor(t, "alice", map[string][]string{"email": {"alice@example.org"}})

	resp := CAS2Factory{}.Success(Result{Session: s})
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Body, "<cas:authenticationSuccess>")
	assert.Contains(t, resp.Body, "<cas:user>alice</cas:user>")
	assert.Contains(t, resp.Body, "<cas:email>alice@example.org</cas:email>")
	assert.NotContains(t, resp.Body, "proxyGrantingTicket")
}

func TestCAS2Factory_Failure(t *testing.T) {
	resp := CAS2Factory{}.Failure(CodeInvalidToken, "token <ST-1> expired")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Body, `<cas:authenticationFailure code="INVALID_TICKET">`)
	assert.Contains(t, resp.Body, "token &lt;ST-1&gt; expired")
}

func TestResponseRegistry(t *testing.T) {
	r := NewResponseRegistry(CAS2Factory{}, CAS1Factory{})

	assert.IsType(t, CAS1Factory{}, r.ForProtocol(session.ProtocolCAS1))
	assert.IsType(t, CAS2Factory{}, r.ForProtocol(session.ProtocolCAS2))
	assert.IsType(t, CAS2Factory{}, r.ForProtocol(session.ProtocolSAML11))
	// Empty protocol falls back to the first factory.
	assert.IsType(t, CAS2Factory{}, r.ForProtocol(""))

	assert.Panics(t, func() { r.ForProtocol("cas99") })
	assert.Panics(t, func() { NewResponseRegistry() })
}

func TestResponseRegistry_ForAccess(t *testing.T) {
	r := NewResponseRegistry(CAS2Factory{}, CAS1Factory{})
	s := sessionFor(t, "alice", nil)

	st, err := s.Grant(&session.ServiceAccessRequest{
		ServiceID: "https://app.example.org",
		SessionID: s.ID(),
		Protocol:  session.ProtocolCAS1,
	})
	require.NoError(t, err)
	assert.IsType(t, CAS1Factory{}, r.ForAccess(st))

	saml, err := s.Grant(&session.ServiceAccessRequest{
		ServiceID: "https://app.example.org",
		SessionID: s.ID(),
		Protocol:  session.ProtocolSAML11,
	})
	require.NoError(t, err)
	assert.IsType(t, CAS2Factory{}, r.ForAccess(saml))

	assert.Panics(t, func() { r.ForAccess(nil) })
}
