package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/josquinlarsen/tarpaulin/internal/apperror"
	"github.com/josquinlarsen/tarpaulin/internal/auth"
)

// CredentialExchanger trades a username and password for a bearer token at
// the identity provider (auth.PasswordGrant in production).
type CredentialExchanger interface {
	Login(ctx context.Context, username, password string) (string, error)
}

var _ CredentialExchanger = (*auth.PasswordGrant)(nil)

// AuthService handles login. Users are never created here; a token is only
// useful if its subject was provisioned with cmd/seed.
type AuthService struct {
	idp    CredentialExchanger
	logger *slog.Logger
}

func NewAuthService(idp CredentialExchanger, logger *slog.Logger) *AuthService {
	return &AuthService{idp: idp, logger: logger}
}

// Login returns the provider's id_token for the credentials. Rejected
// credentials are apperror.ErrUnauthenticated; a provider outage is not.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}

	token, err := s.idp.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Info("login rejected", slog.String("error", err.Error()))
			return "", apperror.Unauthenticated("invalid credentials")
		}
		s.logger.Error("identity provider unavailable", slog.String("error", err.Error()))
		return "", fmt.Errorf("logging in: %w", err)
	}
	return token, nil
}
