package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/auriga-id/casd/internal/api/helpers"
	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/cas"
	"github.com/auriga-id/casd/internal/session"
	"github.com/auriga-id/casd/internal/stats"
)

// CASHandler translates HTTP requests into orchestrator calls.
type CASHandler struct {
	svc   *cas.CentralAuthenticationService
	stats *stats.Collector
}

// NewCASHandler builds the handler set. stats may be nil when the stats
// endpoint is not exposed.
func NewCASHandler(svc *cas.CentralAuthenticationService, collector *stats.Collector) *CASHandler {
	return &CASHandler{svc: svc, stats: collector}
}

// LoginRequest is the JSON body of POST /api/v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
	LongTerm bool   `json:"long_term,omitempty"`
}

// LoginResponse is the JSON shape of a successful login.
type LoginResponse struct {
	SessionID string `json:"session_id"`
	Principal string `json:"principal"`
	LongTerm  bool   `json:"long_term,omitempty"`
}

func (h *CASHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		slog.Warn("login: invalid request body", "error", err)
		http.Error(w, "Invalid request body format", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	creds := []authn.Credential{authn.UserPasswordCredential{Username: req.Username, Password: req.Password}}
	if req.OTP != "" {
		creds = append(creds, authn.OneTimePasswordCredential{Username: req.Username, Code: req.OTP})
	}

	resp, err := h.svc.Login(r.Context(), &cas.LoginRequest{Credentials: creds, LongTerm: req.LongTerm})
	if err != nil {
		slog.Error("login failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !resp.Succeeded() {
		failures := make(map[string]string, len(resp.Auth.Failures))
		for name, ferr := range resp.Auth.Failures {
			failures[name] = ferr.Error()
		}
		helpers.WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":    "authentication failed",
			"failures": failures,
		})
		return
	}

	helpers.WriteJSON(w, http.StatusOK, LoginResponse{
		SessionID: resp.Session.ID(),
		Principal: resp.Session.Principal().ID,
		LongTerm:  resp.Session.IsLongTerm(),
	})
}

// LogoutRequest is the JSON body of POST /api/v1/logout.
type LogoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h *CASHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body format", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.Logout(r.Context(), req.SessionID)
	if err != nil {
		slog.Error("logout failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"destroyed": sessionIDs(resp),
	})
}

// LogoutPrincipal handles DELETE /api/v1/sessions?principal=<id>.
func (h *CASHandler) LogoutPrincipal(w http.ResponseWriter, r *http.Request) {
	principalID := r.URL.Query().Get("principal")
	if principalID == "" {
		http.Error(w, "principal is required", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.LogoutPrincipal(r.Context(), principalID)
	if err != nil {
		slog.Error("logout by principal failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"destroyed": sessionIDs(resp),
	})
}

// Validate handles GET /validate, the legacy plain-text endpoint.
func (h *CASHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.validateToken(w, r, session.ProtocolCAS1, "text/plain; charset=utf-8")
}

// ServiceValidate handles GET /serviceValidate (XML responses).
func (h *CASHandler) ServiceValidate(w http.ResponseWriter, r *http.Request) {
	h.validateToken(w, r, session.ProtocolCAS2, "application/xml; charset=utf-8")
}

// ProxyValidate handles GET /proxyValidate. It shares the serviceValidate
// encoding; proxy tokens are distinguished by their grant, not the
// endpoint.
func (h *CASHandler) ProxyValidate(w http.ResponseWriter, r *http.Request) {
	h.validateToken(w, r, session.ProtocolCAS2, "application/xml; charset=utf-8")
}

func (h *CASHandler) validateToken(w http.ResponseWriter, r *http.Request, proto session.Protocol, contentType string) {
	q := r.URL.Query()
	req := &session.TokenServiceAccessRequest{
		Token:     q.Get("ticket"),
		ServiceID: q.Get("service"),
		Protocol:  proto,
	}

	// A callback URL requests a delegated (proxy-granting) session.
	if pgtURL := q.Get("pgtUrl"); pgtURL != "" {
		parsed, err := url.Parse(pgtURL)
		if err != nil {
			http.Error(w, "invalid pgtUrl", http.StatusBadRequest)
			return
		}
		req.Credentials = []authn.Credential{authn.URLCredential{URL: parsed}}
	}

	resp, err := h.svc.Validate(r.Context(), req)
	if err != nil {
		slog.Error("validate failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// The protocol always answers 200; failure travels in the payload.
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(resp.Body))
}

// GrantRequest is the JSON body of POST /api/v1/grant.
type GrantRequest struct {
	SessionID string `json:"session_id"`
	Service   string `json:"service"`
	Protocol  string `json:"protocol,omitempty"`
	Proxied   bool   `json:"proxied,omitempty"`

	ForceAuthentication bool   `json:"force_authentication,omitempty"`
	Username            string `json:"username,omitempty"`
	Password            string `json:"password,omitempty"`
	LongTerm            bool   `json:"long_term,omitempty"`
}

// GrantResponse is the JSON shape of a successful grant.
type GrantResponse struct {
	Token             string   `json:"token"`
	SessionID         string   `json:"session_id"`
	Principal         string   `json:"principal"`
	RemainingAccesses []string `json:"remaining_accesses,omitempty"`
}

func (h *CASHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body format", http.StatusBadRequest)
		return
	}

	proto := session.Protocol(req.Protocol)
	if proto == "" {
		proto = session.ProtocolCAS2
	}
	accessReq := &session.ServiceAccessRequest{
		ServiceID:            req.Service,
		SessionID:            req.SessionID,
		Protocol:             proto,
		ForceAuthentication:  req.ForceAuthentication,
		LongTermLoginRequest: req.LongTerm,
		Proxied:              req.Proxied,
	}
	if req.ForceAuthentication {
		accessReq.Credentials = []authn.Credential{
			authn.UserPasswordCredential{Username: req.Username, Password: req.Password},
		}
	}

	resp, err := h.svc.GrantAccess(r.Context(), accessReq)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, cas.ErrUnauthorizedService):
			status = http.StatusForbidden
		case errors.Is(err, cas.ErrNotFoundSession):
			status = http.StatusNotFound
		case errors.Is(err, session.ErrInvalidatedSession):
			status = http.StatusGone
		default:
			slog.Error("grant failed", "error", err)
		}
		helpers.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if !resp.Success {
		helpers.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": resp.ErrorText,
			"code":  string(resp.ErrorCode),
		})
		return
	}

	// SessionID may differ from the request when a forced
	// re-authentication replaced the session.
	helpers.WriteJSON(w, http.StatusOK, GrantResponse{
		Token:             resp.Token,
		SessionID:         resp.SessionID,
		Principal:         resp.PrincipalID,
		RemainingAccesses: resp.RemainingAccesses,
	})
}

// Stats handles GET /stats.
func (h *CASHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "stats collection disabled", http.StatusNotFound)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, h.stats.Snapshot())
}

func sessionIDs(resp *cas.LogoutResponse) []string {
	ids := make([]string, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		ids = append(ids, s.ID())
	}
	return ids
}
