package domain

import (
	"fmt"
	"strings"
)

// PrincipalKind identifies which account table a principal lives in
type PrincipalKind string

const (
	PrincipalUser       PrincipalKind = "user"
	PrincipalAdvertiser PrincipalKind = "advertiser"
)

// Principal is an authenticated identity: (kind, id)
type Principal struct {
	Kind PrincipalKind `json:"type"`
	ID   int64         `json:"id"`
}

// ParsePrincipalKind normalizes the sender_type / participant_type strings
// clients send. Unknown inputs are rejected.
func ParsePrincipalKind(raw string) (PrincipalKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "users":
		return PrincipalUser, nil
	case "advertiser", "advertisers":
		return PrincipalAdvertiser, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPrincipalKind, raw)
}

// Valid reports whether k is one of the known kinds
func (k PrincipalKind) Valid() bool {
	return k == PrincipalUser || k == PrincipalAdvertiser
}

// Equal compares two principals by kind and id
func (p Principal) Equal(other Principal) bool {
	return p.Kind == other.Kind && p.ID == other.ID
}

// String renders the principal as "kind:id", used for logs and cache keys
func (p Principal) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// DirectKey returns the order-independent key of the unordered pair {a, b}.
// Two principals share at most one direct conversation per key.
func DirectKey(a, b Principal) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + "|" + y
}
