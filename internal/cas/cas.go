// Package cas implements the central authentication orchestrator: login,
// logout, access granting and token validation over the session store.
package cas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/auriga-id/casd/internal/audit"
	"github.com/auriga-id/casd/internal/authn"
	"github.com/auriga-id/casd/internal/services"
	"github.com/auriga-id/casd/internal/session"
	"github.com/auriga-id/casd/internal/storage"
)

// CentralAuthenticationService composes the authentication manager, the
// session store, the service registry and the response factories into the
// four public operations of the authority.
type CentralAuthenticationService struct {
	auth      *authn.Manager
	store     storage.SessionStorage
	sessions  *session.Factory
	services  *services.Registry
	factories *ResponseRegistry

	preAuth  []PreAuthenticationPlugin
	postAuth []AuthenticationResponsePlugin

	observer audit.Observer
	logger   *slog.Logger
}

// Option configures the service.
type Option func(*CentralAuthenticationService)

// WithPreAuthPlugins sets the pre-authentication chain, consulted in order.
func WithPreAuthPlugins(plugins ...PreAuthenticationPlugin) Option {
	return func(c *CentralAuthenticationService) { c.preAuth = plugins }
}

// WithPostAuthPlugins sets the post-authentication chain; every plugin is
// invoked.
func WithPostAuthPlugins(plugins ...AuthenticationResponsePlugin) Option {
	return func(c *CentralAuthenticationService) { c.postAuth = plugins }
}

// WithObserver sets the audit observer.
func WithObserver(o audit.Observer) Option {
	return func(c *CentralAuthenticationService) { c.observer = o }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *CentralAuthenticationService) { c.logger = l }
}

// New wires the orchestrator.
func New(auth *authn.Manager, store storage.SessionStorage, sessions *session.Factory, registry *services.Registry, factories *ResponseRegistry, opts ...Option) *CentralAuthenticationService {
	c := &CentralAuthenticationService{
		auth:      auth,
		store:     store,
		sessions:  sessions,
		services:  registry,
		factories: factories,
		observer:  audit.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates the credentials and, on success, establishes a root
// session. Authentication failures travel in-band on the response; only
// infrastructure problems surface as errors.
func (c *CentralAuthenticationService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("login request is required")
	}

	for _, plugin := range c.preAuth {
		if resp := plugin.ContinueWithAuthentication(ctx, req); resp != nil {
			c.observer.LoginFailed("pre-authentication rejected")
			return resp, nil
		}
	}

	authResp, err := c.auth.Authenticate(ctx, authn.Request{
		Credentials: req.Credentials,
		LongTerm:    req.LongTerm,
	})
	if err != nil {
		return nil, err
	}

	for _, plugin := range c.postAuth {
		plugin.Handle(ctx, req, authResp)
	}

	if !authResp.Succeeded {
		c.observer.LoginFailed(failureReason(authResp))
		return &LoginResponse{Auth: authResp}, nil
	}

	root, err := c.sessions.NewRootSession(authResp)
	if err != nil {
		return nil, err
	}
	if err := c.store.AddSession(ctx, root); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	c.observer.LoginSucceeded(authResp.Principal.ID, root.ID())
	c.logger.Info("session established",
		slog.String("principal", authResp.Principal.ID),
		slog.String("session_id", root.ID()))
	return &LoginResponse{Session: root, Auth: authResp}, nil
}

// Logout destroys the identified session and its whole subtree. An empty
// or unknown id is a silent no-op returning an empty response.
func (c *CentralAuthenticationService) Logout(ctx context.Context, sessionID string) (*LogoutResponse, error) {
	if sessionID == "" {
		return &LogoutResponse{}, nil
	}

	s, err := c.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return &LogoutResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	s.Invalidate()
	if s.IsRoot() {
		err = c.store.DeleteSession(ctx, s)
	} else {
		// A delegated session dies but the surrounding tree stays stored.
		err = c.store.UpdateSession(ctx, s)
	}
	if err != nil {
		return nil, err
	}

	c.observer.SessionDestroyed(s.ID())
	c.logger.Info("session destroyed", slog.String("session_id", s.ID()))
	return &LogoutResponse{Sessions: []*session.Session{s}}, nil
}

// LogoutPrincipal destroys every session of the principal. Destroys are
// independent; a failure on one session does not roll back the others.
func (c *CentralAuthenticationService) LogoutPrincipal(ctx context.Context, principalID string) (*LogoutResponse, error) {
	roots, err := c.store.GetSessionsByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	resp := &LogoutResponse{}
	for _, root := range roots {
		root.Invalidate()
		if err := c.store.DeleteSession(ctx, root); err != nil {
			c.logger.Error("destroying session failed",
				slog.String("session_id", root.ID()),
				slog.String("error", err.Error()))
			continue
		}
		c.observer.SessionDestroyed(root.ID())
		resp.Sessions = append(resp.Sessions, root)
	}
	return resp, nil
}

// Validate resolves a previously issued token and applies its usage
// policy. Business failures become protocol responses, never errors; only
// storage trouble surfaces as an error. When delegation credentials are
// present a delegated session is minted first, and a delegation failure
// does not consume the primary validation.
func (c *CentralAuthenticationService) Validate(ctx context.Context, req *session.TokenServiceAccessRequest) (*ServiceAccessResponse, error) {
	factory := c.factoryForToken(req)

	if !req.IsValid() {
		c.observer.ValidationFailed(tokenOf(req), serviceOf(req), "malformed request")
		return factory.Failure(CodeInvalidRequest, "token and service are required"), nil
	}

	s, err := c.store.GetSessionByAccessToken(ctx, req.Token)
	if errors.Is(err, storage.ErrNotFound) {
		c.observer.ValidationFailed(req.Token, req.ServiceID, "token not recognized")
		return factory.Failure(CodeInvalidToken, "token "+req.Token+" not recognized"), nil
	}
	if err != nil {
		return nil, err
	}

	access := s.GetAccess(req.Token)
	if access == nil {
		c.observer.ValidationFailed(req.Token, req.ServiceID, "token not recognized")
		return factory.Failure(CodeInvalidToken, "token "+req.Token+" not recognized"), nil
	}

	var delegated *session.Session
	if len(req.Credentials) > 0 {
		delegated = c.delegate(ctx, access, req)
	}

	validateErr := access.Validate(req)
	// Committed mutations (a consumed one-shot, the touched lastUsed) must
	// reach the store even when validation failed.
	if err := c.store.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	if validateErr != nil {
		code, reason := validationFailure(validateErr)
		c.observer.ValidationFailed(req.Token, req.ServiceID, reason)
		return factory.Failure(code, reason), nil
	}

	c.observer.ValidationSucceeded(req.Token, req.ServiceID)
	// The success encoding follows the access as granted, not the request.
	return c.factories.ForAccess(access).Success(Result{
		Session:          s,
		Access:           access,
		DelegatedSession: delegated,
	}), nil
}

func (c *CentralAuthenticationService) delegate(ctx context.Context, access *session.Access, req *session.TokenServiceAccessRequest) *session.Session {
	authResp, err := c.auth.Authenticate(ctx, authn.Request{Credentials: req.Credentials})
	if err != nil || !authResp.Succeeded {
		c.logger.Warn("delegation authentication failed", slog.String("token", req.Token))
		return nil
	}
	child, err := access.CreateDelegatedSession(authResp)
	if err != nil {
		c.logger.Warn("delegated session rejected",
			slog.String("token", req.Token),
			slog.String("error", err.Error()))
		return nil
	}
	if err := c.store.UpdateSession(ctx, child); err != nil {
		c.logger.Error("persisting delegated session failed",
			slog.String("session_id", child.ID()),
			slog.String("error", err.Error()))
		return nil
	}
	c.observer.DelegatedSessionCreated(req.Token, child.ID())
	return child
}

// GrantAccess mints a service-scoped token from an established session.
// Unauthorized services, missing sessions and dead sessions surface as
// errors on direct requests; proxied requests get protocol responses
// instead so relying parties always receive a well-formed reply.
func (c *CentralAuthenticationService) GrantAccess(ctx context.Context, req *session.ServiceAccessRequest) (*ServiceAccessResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("service access request is required")
	}
	factory := c.factories.ForProtocol(req.Protocol)

	if !c.services.MatchesExistingService(req.ServiceID) {
		c.observer.GrantDenied(req.ServiceID, "service not registered")
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedService, req.ServiceID)
	}

	if !req.IsValid() {
		c.observer.GrantDenied(req.ServiceID, "malformed request")
		return factory.Failure(CodeInvalidRequest, "service and session are required"), nil
	}

	s, err := c.store.GetSession(ctx, req.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		c.observer.GrantDenied(req.ServiceID, "session not found")
		if req.Proxied {
			return factory.Failure(CodeInvalidRequest, "session "+req.SessionID+" not found"), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFoundSession, req.SessionID)
	}
	if err != nil {
		return nil, err
	}

	if !s.IsValid() {
		c.observer.GrantDenied(req.ServiceID, "session invalidated or expired")
		if req.Proxied {
			return factory.Failure(CodeInvalidRequest, "session "+req.SessionID+" no longer valid"), nil
		}
		return nil, fmt.Errorf("%w: %s", session.ErrInvalidatedSession, req.SessionID)
	}

	var authResp *authn.Response
	var remaining []string
	if req.ForceAuthentication {
		authResp, err = c.auth.Authenticate(ctx, authn.Request{
			Credentials: req.Credentials,
			LongTerm:    req.LongTermLoginRequest,
		})
		if err != nil {
			return nil, err
		}
		if !authResp.Succeeded {
			c.observer.GrantDenied(req.ServiceID, "re-authentication failed")
			return factory.Failure(CodeAuthenticationFailure, failureReason(authResp)), nil
		}

		if authResp.Principal.ID != s.Principal().ID {
			s, remaining, err = c.replaceSession(ctx, s, authResp)
			if err != nil {
				return nil, err
			}
		} else {
			if err := s.AddAuthentication(authResp.Authentications...); err != nil {
				return nil, err
			}
		}
	}

	access, err := s.Grant(req)
	if errors.Is(err, session.ErrInvalidatedSession) {
		c.observer.GrantDenied(req.ServiceID, "session invalidated")
		if req.Proxied {
			return factory.Failure(CodeInvalidRequest, "session "+s.ID()+" no longer valid"), nil
		}
		return nil, fmt.Errorf("%w: %s", session.ErrInvalidatedSession, s.ID())
	}
	if err != nil {
		return nil, err
	}

	if err := c.store.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	c.observer.AccessGranted(s.ID(), req.ServiceID, access.ID())
	return c.factories.ForAccess(access).Success(Result{
		Session:           s,
		Access:            access,
		Auth:              authResp,
		RemainingAccesses: remaining,
	}), nil
}

// replaceSession implements the principal-change branch of a forced
// re-authentication: the old session is destroyed, its unconsumed accesses
// are collected for the response, and a fresh session takes its place.
func (c *CentralAuthenticationService) replaceSession(ctx context.Context, old *session.Session, authResp *authn.Response) (*session.Session, []string, error) {
	var remaining []string
	for _, a := range old.OutstandingAccesses() {
		remaining = append(remaining, a.ResourceID())
	}

	old.Invalidate()
	if err := c.store.DeleteSession(ctx, old); err != nil {
		return nil, nil, fmt.Errorf("destroying session: %w", err)
	}
	c.observer.SessionDestroyed(old.ID())

	fresh, err := c.sessions.NewRootSession(authResp)
	if err != nil {
		return nil, nil, err
	}
	if err := c.store.AddSession(ctx, fresh); err != nil {
		return nil, nil, fmt.Errorf("storing session: %w", err)
	}
	c.observer.LoginSucceeded(authResp.Principal.ID, fresh.ID())
	c.logger.Info("session replaced on principal change",
		slog.String("old_session_id", old.ID()),
		slog.String("session_id", fresh.ID()),
		slog.String("principal", authResp.Principal.ID))
	return fresh, remaining, nil
}

func (c *CentralAuthenticationService) factoryForToken(req *session.TokenServiceAccessRequest) ResponseFactory {
	if req == nil {
		return c.factories.ForProtocol("")
	}
	return c.factories.ForProtocol(req.Protocol)
}

func validationFailure(err error) (ErrorCode, string) {
	switch {
	case errors.Is(err, session.ErrTokenUsed):
		return CodeInvalidToken, "token already used"
	case errors.Is(err, session.ErrTokenExpired):
		return CodeInvalidToken, "token expired"
	case errors.Is(err, session.ErrInvalidatedSession):
		return CodeInvalidToken, "session invalidated"
	default:
		return CodeInvalidRequest, err.Error()
	}
}

func failureReason(resp *authn.Response) string {
	for name, err := range resp.Failures {
		return name + ": " + err.Error()
	}
	return "authentication failed"
}

func tokenOf(req *session.TokenServiceAccessRequest) string {
	if req == nil {
		return ""
	}
	return req.Token
}

func serviceOf(req *session.TokenServiceAccessRequest) string {
	if req == nil {
		return ""
	}
	return req.ServiceID
}
