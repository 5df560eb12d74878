// Package identity produces the session-unique tokens peers dial each other by.
package identity

import (
	"regexp"

	"github.com/google/uuid"
)

// SessionIdentity is the address a remote peer dials to reach this process.
// It is generated once per process and never changes.
type SessionIdentity string

// shape is the canonical lowercase UUID v4 layout: version nibble 4 and
// RFC 4122 variant nibble (8, 9, a or b).
var shape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Generate returns a fresh random UUID v4 identity.
//
// uuid.New draws from crypto/rand; it only panics if the system entropy
// source is broken, which we treat as unrecoverable.
func Generate() SessionIdentity {
	return SessionIdentity(uuid.New().String())
}

// NewAssetID returns a token unique within the session for a file asset.
func NewAssetID() string {
	return uuid.New().String()
}

// Valid reports whether s has the exact 36-character UUID v4 shape.
func Valid(s string) bool {
	return shape.MatchString(s)
}

// Short returns the first eight characters, used in user-facing messages.
func (id SessionIdentity) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

func (id SessionIdentity) String() string { return string(id) }
