package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// NewJWKSKeyfunc loads the provider's key set from url and keeps it fresh in
// the background until ctx is done. A token with an unknown kid triggers a
// rate-limited refetch. A failed first fetch is not fatal; the set is
// retried on the next refresh.
func NewJWKSKeyfunc(ctx context.Context, url string) (jwt.Keyfunc, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("auth: loading JWKS from %s: %w", url, err)
	}
	return k.Keyfunc, nil
}

// JWKSURL is where an Auth0-style provider publishes its keys.
func JWKSURL(domain string) string {
	return "https://" + domain + "/.well-known/jwks.json"
}
