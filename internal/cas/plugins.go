package cas

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/auriga-id/casd/internal/authn"
)

// PreAuthenticationPlugin runs before the credential pipeline. A non-nil
// response short-circuits the login; nil continues the chain. Plugins
// implement throttling, CAPTCHA challenges and similar gates.
type PreAuthenticationPlugin interface {
	ContinueWithAuthentication(ctx context.Context, req *LoginRequest) *LoginResponse
}

// AuthenticationResponsePlugin runs after the credential pipeline with the
// raw outcome. Plugins cannot veto at this stage.
type AuthenticationResponsePlugin interface {
	Handle(ctx context.Context, req *LoginRequest, resp *authn.Response)
}

// ErrThrottled is the in-band failure recorded when the throttle rejects a
// login attempt.
var ErrThrottled = errors.New("too many login attempts")

// ThrottlePlugin rejects logins beyond a global rate. It is a
// PreAuthenticationPlugin; a rejected attempt gets a failed LoginResponse
// without ever reaching a credential handler.
type ThrottlePlugin struct {
	limiter *rate.Limiter
}

// NewThrottlePlugin allows rps sustained attempts with the given burst.
func NewThrottlePlugin(rps float64, burst int) *ThrottlePlugin {
	return &ThrottlePlugin{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *ThrottlePlugin) ContinueWithAuthentication(_ context.Context, _ *LoginRequest) *LoginResponse {
	if t.limiter.Allow() {
		return nil
	}
	return &LoginResponse{
		Auth: &authn.Response{
			Succeeded: false,
			Failures:  map[string]error{"throttle": ErrThrottled},
		},
	}
}
