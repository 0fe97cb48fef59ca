// Package auth verifies bearer tokens issued by the identity provider and
// exchanges login credentials for them.
//
// Only the "sub" claim is consumed. Everything else about the caller (role,
// numeric id) is looked up in the store by the service layer.
//
// Two verification modes exist:
//   - RS256 against the provider's published JWKS (production)
//   - HS256 with a shared JWT_SECRET (local development and tests); the
//     TokenIssuer below mints tokens for that mode
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// Verifier validates a bearer token and returns its subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

var (
	_ Verifier = (*TokenVerifier)(nil)

	ErrTokenExpired = errors.New("auth: token expired")
	ErrNoSubject    = errors.New("auth: token has no subject")
)

// TokenVerifier checks signature, expiry and (when configured) issuer and
// audience. The key lookup decides which algorithm family is accepted.
type TokenVerifier struct {
	methods []string
	key     func(ctx context.Context, token *jwt.Token) (any, error)
	opts    []jwt.ParserOption
}

// NewHMACVerifier accepts HS256 tokens signed with secret.
func NewHMACVerifier(secret, issuer, audience string) (*TokenVerifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	key := []byte(secret)
	return &TokenVerifier{
		methods: []string{jwt.SigningMethodHS256.Alg()},
		key: func(_ context.Context, token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		opts: claimOptions(issuer, audience),
	}, nil
}

// NewJWKSVerifier accepts RS256 tokens whose "kid" resolves through keys,
// usually built by NewJWKSKeyfunc.
func NewJWKSVerifier(keys jwt.Keyfunc, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{
		methods: []string{jwt.SigningMethodRS256.Alg()},
		key: func(_ context.Context, token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			if kid, _ := token.Header["kid"].(string); kid == "" {
				return nil, errors.New("auth: token header has no kid")
			}
			return keys(token)
		},
		opts: claimOptions(issuer, audience),
	}
}

func claimOptions(issuer, audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return opts
}

// Verify parses tokenStr and returns its "sub" claim.
func (v *TokenVerifier) Verify(ctx context.Context, tokenStr string) (string, error) {
	opts := append([]jwt.ParserOption{jwt.WithValidMethods(v.methods)}, v.opts...)

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(token *jwt.Token) (any, error) { return v.key(ctx, token) },
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}

// TokenIssuer mints HS256 tokens accepted by an HMAC verifier built from the
// same secret, issuer and audience.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

func NewTokenIssuer(secret, issuer, audience string) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// Generate signs a one-hour token for sub.
func (i *TokenIssuer) Generate(sub string) (string, error) {
	return i.GenerateWithDuration(sub, time.Hour)
}

// GenerateWithDuration signs a token for sub that expires after d. A
// negative d yields an already expired token.
func (i *TokenIssuer) GenerateWithDuration(sub string, d time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		ID:        xid.New().String(),
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}
