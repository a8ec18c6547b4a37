package authn

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines the contract for password operations.
// This interface allows us to easily mock hashing in tests or swap algorithms.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher using the bcrypt algorithm.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new hasher with the default cost (12).
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: 12}
}

// Hash returns the bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Compare checks if the provided password matches the hash.
// Returns nil if match, error otherwise.
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// UserStore resolves an account to its password hash and released attributes.
type UserStore interface {
	FindUser(ctx context.Context, username string) (hash string, attributes map[string][]string, err error)
}

// StaticUserStore is an in-memory UserStore, primarily for development and
// tests. Production deployments plug in a directory-backed store.
type StaticUserStore struct {
	mu    sync.RWMutex
	users map[string]staticUser
}

type staticUser struct {
	hash       string
	attributes map[string][]string
}

// NewStaticUserStore returns an empty store.
func NewStaticUserStore() *StaticUserStore {
	return &StaticUserStore{users: make(map[string]staticUser)}
}

// Add registers a user with an already-hashed password.
func (s *StaticUserStore) Add(username, hash string, attributes map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = staticUser{hash: hash, attributes: attributes}
}

// FindUser implements UserStore.
func (s *StaticUserStore) FindUser(_ context.Context, username string) (string, map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		// Generic error to prevent user enumeration.
		return "", nil, ErrBadCredentials
	}
	return u.hash, u.attributes, nil
}

// PasswordHandler authenticates UserPasswordCredentials against a UserStore.
type PasswordHandler struct {
	store  UserStore
	hasher PasswordHasher
}

// NewPasswordHandler builds the handler. A nil hasher defaults to bcrypt.
func NewPasswordHandler(store UserStore, hasher PasswordHasher) *PasswordHandler {
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	return &PasswordHandler{store: store, hasher: hasher}
}

func (h *PasswordHandler) Name() string { return "password" }

func (h *PasswordHandler) Supports(c Credential) bool {
	_, ok := c.(UserPasswordCredential)
	return ok
}

func (h *PasswordHandler) Authenticate(ctx context.Context, c Credential) (*Principal, map[string][]string, error) {
	cred := c.(UserPasswordCredential)

	hash, attrs, err := h.store.FindUser(ctx, cred.Username)
	if err != nil {
		return nil, nil, ErrBadCredentials
	}
	if err := h.hasher.Compare(hash, cred.Password); err != nil {
		return nil, nil, ErrBadCredentials
	}

	return &Principal{ID: cred.Username, Attributes: attrs}, attrs, nil
}
