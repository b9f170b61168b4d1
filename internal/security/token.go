package security

import (
	"regexp"

	"github.com/google/uuid"
)

// accessTokenShape is the fixed UUID v4 pattern a share token must match
// before any store lookup is attempted.
var accessTokenShape = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// NewAccessToken generates a share token: a random UUID v4 (122 bits of
// entropy).
func NewAccessToken() string {
	return uuid.New().String()
}

// ValidAccessToken reports whether the token is syntactically a UUID v4.
// A structurally invalid token short-circuits with 400 at the boundary,
// before storage is touched.
func ValidAccessToken(token string) bool {
	return accessTokenShape.MatchString(token)
}
