// Package notify delivers single-logout callbacks to relying services.
package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPNotifier posts a logout request to the service URL an access was
// granted for. Delivery is best-effort and synchronous; the client timeout
// bounds the call.
type HTTPNotifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPNotifier builds a notifier with the given per-request timeout.
func NewHTTPNotifier(timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// DestroyLocalSession posts a SAML-style logout request naming the access
// token the relying party bound its local session to. Returns true when
// the service acknowledged with a 2xx.
func (n *HTTPNotifier) DestroyLocalSession(resourceID, accessID string) bool {
	body := logoutRequestBody(accessID)
	form := url.Values{"logoutRequest": {body}}

	resp, err := n.client.PostForm(resourceID, form)
	if err != nil {
		n.logger.Warn("logout notification failed",
			slog.String("service", resourceID),
			slog.String("access_id", accessID),
			slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		n.logger.Warn("logout notification rejected",
			slog.String("service", resourceID),
			slog.String("access_id", accessID),
			slog.Int("status", resp.StatusCode))
	}
	return ok
}

func logoutRequestBody(accessID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="%s" Version="2.0" IssueInstant="%s">`,
		uuid.NewString(), time.Now().UTC().Format(time.RFC3339))
	b.WriteString(`<saml:NameID xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">@NOT_USED@</saml:NameID>`)
	fmt.Fprintf(&b, `<samlp:SessionIndex>%s</samlp:SessionIndex>`, accessID)
	b.WriteString(`</samlp:LogoutRequest>`)
	return b.String()
}
