package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Ticket id prefixes, following the conventional CAS naming.
const (
	PrefixSession          = "TGT" // root session (ticket-granting ticket)
	PrefixDelegatedSession = "PGT" // delegated session (proxy-granting ticket)
	PrefixAccess           = "ST"  // service access (service ticket)
	PrefixProxyAccess      = "PT"  // proxied access (proxy ticket)
)

// IDGenerator mints unguessable ticket identifiers.
type IDGenerator interface {
	NewID(prefix string) string
}

// UUIDGenerator is the default IDGenerator. A v4 UUID carries 122 bits of
// randomness, enough for an unguessable one-shot token.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
