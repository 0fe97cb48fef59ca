// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const minJWTSecretLen = 16

// Config holds all configuration for the server.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Logging LoggingConfig
	IdP     IdPConfig
	Limits  LimitsConfig
}

type ServerConfig struct {
	Port int
	// PublicURL prefixes every link in responses. Empty means derive it
	// from the request's host.
	PublicURL string
}

type StorageConfig struct {
	DBPath    string
	AvatarDir string
	// AvatarBucket is a bucket URL such as file:///data/avatars or
	// gs://bucket. When set it takes precedence over AvatarDir.
	AvatarBucket string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// IdPConfig describes the external identity provider. With JWTSecret set,
// bearer tokens are verified with HS256 instead of the provider's JWKS.
type IdPConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	Issuer       string
	JWTSecret    string
}

type LimitsConfig struct {
	RequestsPerMinute int
	LoginsPerMinute   int
	MaxUploadBytes    int64
}

// UsesHMAC reports whether tokens are verified against the shared secret.
func (c IdPConfig) UsesHMAC() bool { return c.JWTSecret != "" }

// Load reads a .env file in the working directory when one exists, then
// the process environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Server.Port, err = intEnv("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", cfg.Server.Port)
	}
	cfg.Server.PublicURL = strings.TrimRight(os.Getenv("PUBLIC_URL"), "/")

	cfg.Storage.DBPath = stringEnv("DB_PATH", "data/tarpaulin.db")
	cfg.Storage.AvatarDir = stringEnv("AVATAR_DIR", "data/avatars")
	cfg.Storage.AvatarBucket = stringEnv("AVATAR_BUCKET", "")

	cfg.Logging.Level = strings.ToLower(stringEnv("LOG_LEVEL", "info"))
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	cfg.Logging.Format = strings.ToLower(stringEnv("LOG_FORMAT", "text"))
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want text or json", cfg.Logging.Format)
	}

	cfg.IdP.Domain = os.Getenv("IDP_DOMAIN")
	cfg.IdP.ClientID = os.Getenv("IDP_CLIENT_ID")
	cfg.IdP.ClientSecret = os.Getenv("IDP_CLIENT_SECRET")
	cfg.IdP.Audience = stringEnv("IDP_AUDIENCE", cfg.IdP.ClientID)
	cfg.IdP.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.IdP.Issuer = os.Getenv("JWT_ISSUER")
	if cfg.IdP.Issuer == "" && cfg.IdP.Domain != "" && !cfg.IdP.UsesHMAC() {
		cfg.IdP.Issuer = "https://" + cfg.IdP.Domain + "/"
	}

	if cfg.IdP.UsesHMAC() && len(cfg.IdP.JWTSecret) < minJWTSecretLen {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLen)
	}
	if !cfg.IdP.UsesHMAC() && cfg.IdP.Domain == "" {
		return nil, errors.New("either JWT_SECRET or IDP_DOMAIN is required")
	}

	if cfg.Limits.RequestsPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		return nil, err
	}
	if cfg.Limits.LoginsPerMinute, err = intEnv("LOGIN_RATE_LIMIT_PER_MINUTE", 10); err != nil {
		return nil, err
	}
	maxUpload, err := intEnv("MAX_UPLOAD_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	cfg.Limits.MaxUploadBytes = int64(maxUpload)

	for name, v := range map[string]int64{
		"RATE_LIMIT_PER_MINUTE":       int64(cfg.Limits.RequestsPerMinute),
		"LOGIN_RATE_LIMIT_PER_MINUTE": int64(cfg.Limits.LoginsPerMinute),
		"MAX_UPLOAD_BYTES":            cfg.Limits.MaxUploadBytes,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", name)
		}
	}

	return cfg, nil
}

// LoginEnabled reports whether POST /users/login can reach a provider.
func (c *Config) LoginEnabled() bool {
	return c.IdP.Domain != "" && c.IdP.ClientID != ""
}

// ParseLevel maps debug|info|warn|error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
}

// NewLogger builds the process logger described by c.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
