package authn

import "time"

// Principal is the authenticated identity. It is immutable once minted by
// the authentication manager.
type Principal struct {
	ID         string              `json:"id"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// Equal reports whether two principals refer to the same identity.
// Attributes do not participate: the id is globally unique per identity source.
func (p *Principal) Equal(other *Principal) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ID == other.ID
}

// Authentication records one successful credential resolution. A session
// accumulates a list of these across re-authentications; the list is
// append-only.
type Authentication struct {
	Principal  Principal           `json:"principal"`
	Date       time.Time           `json:"date"`
	Method     string              `json:"method"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// mergeAttributes folds src into dst, appending values per attribute name.
func mergeAttributes(dst, src map[string][]string) map[string][]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string][]string, len(src))
	}
	for k, vs := range src {
		dst[k] = append(dst[k], vs...)
	}
	return dst
}
