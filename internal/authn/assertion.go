package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidAssertion = errors.New("invalid assertion")
	ErrExpiredAssertion = errors.New("assertion has expired")
)

// AssertionClaims defines the claims expected in an assertion credential.
type AssertionClaims struct {
	Attributes map[string][]string `json:"attrs,omitempty"`
	jwt.RegisteredClaims
}

// AssertionHandler authenticates signed JWT assertions (HS256). The
// principal is taken from the subject claim; released attributes come from
// the custom "attrs" claim.
type AssertionHandler struct {
	secret []byte
	issuer string
}

// NewAssertionHandler builds the handler. issuer, when non-empty, must
// match the assertion's iss claim.
func NewAssertionHandler(secret []byte, issuer string) *AssertionHandler {
	return &AssertionHandler{secret: secret, issuer: issuer}
}

// SignAssertion mints an assertion for the given subject. Used by tests
// and by trusted upstream issuers sharing the secret.
func (h *AssertionHandler) SignAssertion(subject string, attrs map[string][]string, ttl time.Duration) (string, error) {
	claims := AssertionClaims{
		Attributes: attrs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    h.issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)), // Fix clock skew
			NotBefore: jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)), // Fix clock skew
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

func (h *AssertionHandler) Name() string { return "assertion" }

func (h *AssertionHandler) Supports(c Credential) bool {
	_, ok := c.(AssertionCredential)
	return ok
}

func (h *AssertionHandler) Authenticate(_ context.Context, c Credential) (*Principal, map[string][]string, error) {
	cred := c.(AssertionCredential)

	token, err := jwt.ParseWithClaims(cred.Token, &AssertionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrExpiredAssertion
		}
		return nil, nil, ErrInvalidAssertion
	}

	claims, ok := token.Claims.(*AssertionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, nil, ErrInvalidAssertion
	}
	if h.issuer != "" && claims.Issuer != h.issuer {
		return nil, nil, ErrInvalidAssertion
	}

	return &Principal{ID: claims.Subject, Attributes: claims.Attributes}, claims.Attributes, nil
}
