package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrInvalidCredentials covers every answer from the provider that means
	// "these credentials do not get a token".
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNoIDToken is returned when the provider answered without an
	// id_token.
	ErrNoIDToken = fmt.Errorf("%w: token response has no id_token", ErrInvalidCredentials)
)

// PasswordGrant exchanges a username and password for the provider's
// id_token using the OAuth 2.0 resource owner password credentials grant.
// The id_token is what clients later present as their bearer token.
type PasswordGrant struct {
	config *oauth2.Config
}

// NewPasswordGrant targets the provider's /oauth/token endpoint on domain.
func NewPasswordGrant(domain, clientID, clientSecret string) *PasswordGrant {
	return NewPasswordGrantWithTokenURL("https://"+domain+"/oauth/token", clientID, clientSecret)
}

// NewPasswordGrantWithTokenURL is NewPasswordGrant with an explicit token
// endpoint, for providers with a non-standard path and for tests.
func NewPasswordGrantWithTokenURL(tokenURL, clientID, clientSecret string) *PasswordGrant {
	return &PasswordGrant{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Login returns the id_token issued for the given credentials.
func (p *PasswordGrant) Login(ctx context.Context, username, password string) (string, error) {
	tok, err := p.config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, re.ErrorCode)
		}
		return "", fmt.Errorf("auth: password grant: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return "", ErrNoIDToken
	}
	return idToken, nil
}
