package authn

import "net/url"

// Credential is an opaque proof of identity submitted by a front-end.
// Handlers declare which concrete types they support.
type Credential interface {
	// Kind is a short tag used in logs and failure maps.
	Kind() string
}

// UserPasswordCredential is the classic username/password pair.
type UserPasswordCredential struct {
	Username string
	Password string
}

func (UserPasswordCredential) Kind() string { return "user-password" }

// URLCredential identifies a relying party by its callback URL. It is used
// during proxy delegation: the authority verifies it can reach the
// endpoint over a trusted channel.
type URLCredential struct {
	URL *url.URL
}

func (URLCredential) Kind() string { return "url" }

// OneTimePasswordCredential carries a TOTP code for a known account.
type OneTimePasswordCredential struct {
	Username string
	Code     string
}

func (OneTimePasswordCredential) Kind() string { return "otp" }

// AssertionCredential is a signed bearer assertion (JWT) issued by a
// trusted party on behalf of a principal.
type AssertionCredential struct {
	Token string
}

func (AssertionCredential) Kind() string { return "assertion" }
