// Package identity turns storefront session tokens into user ids.
// The agent never authenticates users itself.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidToken is returned for missing, malformed, expired or unknown tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Resolver maps a session token to the user it belongs to.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
