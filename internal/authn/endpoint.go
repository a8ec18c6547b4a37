package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrEndpointNotSecure rejects a callback URL that is not https while
	// secure endpoints are required.
	ErrEndpointNotSecure = errors.New("endpoint url is not secure")
	// ErrEndpointUnreachable means the callback endpoint did not answer.
	ErrEndpointUnreachable = errors.New("endpoint did not respond")
)

// EndpointHandler authenticates URLCredentials by probing the endpoint.
// Ensuring the protocol is https and that a response comes back is the
// whole check: the TLS handshake performed by opening the connection does
// the heavy lifting of authenticating the relying party.
type EndpointHandler struct {
	client        *http.Client
	requireSecure bool
}

// NewEndpointHandler builds the handler. The timeout bounds every probe;
// requireSecure (the default posture) rejects plain-http callbacks.
func NewEndpointHandler(timeout time.Duration, requireSecure bool) *EndpointHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EndpointHandler{
		client:        &http.Client{Timeout: timeout},
		requireSecure: requireSecure,
	}
}

func (h *EndpointHandler) Name() string { return "https-endpoint" }

func (h *EndpointHandler) Supports(c Credential) bool {
	cred, ok := c.(URLCredential)
	return ok && cred.URL != nil
}

func (h *EndpointHandler) Authenticate(ctx context.Context, c Credential) (*Principal, map[string][]string, error) {
	cred := c.(URLCredential)

	if h.requireSecure && cred.URL.Scheme != "https" {
		slog.Debug("endpoint_rejected_not_secure", "url", cred.URL.String())
		return nil, nil, ErrEndpointNotSecure
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cred.URL.String(), nil)
	if err != nil {
		return nil, nil, ErrEndpointUnreachable
	}

	resp, err := h.client.Do(req)
	if err != nil {
		slog.Debug("endpoint_probe_failed", "url", cred.URL.String(), "error", err)
		return nil, nil, ErrEndpointUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, nil, ErrEndpointUnreachable
	}

	return &Principal{ID: cred.URL.String()}, nil, nil
}
