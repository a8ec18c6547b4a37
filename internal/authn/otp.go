package authn

import (
	"context"
	"sync"

	"github.com/pquerna/otp/totp"
)

// SecretStore resolves an account to its TOTP secret.
type SecretStore interface {
	FindSecret(ctx context.Context, username string) (string, error)
}

// StaticSecretStore is an in-memory SecretStore for development and tests.
type StaticSecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewStaticSecretStore() *StaticSecretStore {
	return &StaticSecretStore{secrets: make(map[string]string)}
}

func (s *StaticSecretStore) Add(username, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[username] = secret
}

func (s *StaticSecretStore) FindSecret(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[username]
	if !ok {
		return "", ErrBadCredentials
	}
	return secret, nil
}

// OneTimePasswordHandler validates TOTP codes. totp.Validate allows one
// period of clock skew.
type OneTimePasswordHandler struct {
	store SecretStore
}

func NewOneTimePasswordHandler(store SecretStore) *OneTimePasswordHandler {
	return &OneTimePasswordHandler{store: store}
}

func (h *OneTimePasswordHandler) Name() string { return "otp" }

func (h *OneTimePasswordHandler) Supports(c Credential) bool {
	_, ok := c.(OneTimePasswordCredential)
	return ok
}

func (h *OneTimePasswordHandler) Authenticate(ctx context.Context, c Credential) (*Principal, map[string][]string, error) {
	cred := c.(OneTimePasswordCredential)

	secret, err := h.store.FindSecret(ctx, cred.Username)
	if err != nil {
		return nil, nil, ErrBadCredentials
	}
	if !totp.Validate(cred.Code, secret) {
		return nil, nil, ErrBadCredentials
	}

	return &Principal{ID: cred.Username}, nil, nil
}
