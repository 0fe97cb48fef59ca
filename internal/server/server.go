// Package server wires the store, services, handlers and middleware into
// one router and runs it with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/josquinlarsen/tarpaulin/internal/auth"
	"github.com/josquinlarsen/tarpaulin/internal/config"
	"github.com/josquinlarsen/tarpaulin/internal/handler"
	"github.com/josquinlarsen/tarpaulin/internal/middleware"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
	sqliteRepo "github.com/josquinlarsen/tarpaulin/internal/repository/sqlite"
	"github.com/josquinlarsen/tarpaulin/internal/service"
	"github.com/josquinlarsen/tarpaulin/internal/storage"
)

// Store is the persistence the router needs: the collections plus a
// liveness check for /health.
type Store interface {
	repository.Store
	handler.Pinger
}

// Deps are the collaborators NewRouter wires together. IdP may be nil, in
// which case POST /users/login is not registered.
type Deps struct {
	Store    Store
	Avatars  service.AvatarStore
	Verifier auth.Verifier
	IdP      service.CredentialExchanger
}

// Options are the router settings that come from configuration.
type Options struct {
	PublicURL         string
	RequestsPerMinute int
	LoginsPerMinute   int
	MaxUploadBytes    int64
}

// Server owns the database and serves the API until it is signalled.
type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	db      *sqliteRepo.DB
	avatars *storage.BucketStorage
	// cancel stops the background JWKS refresh.
	cancel context.CancelFunc
}

// New opens the database and avatar directory and builds the verifier and
// login client described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	avatars, err := openAvatars(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening avatar storage: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	verifier, err := newVerifier(ctx, cfg.IdP)
	if err != nil {
		cancel()
		avatars.Close()
		db.Close()
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}

	var idp service.CredentialExchanger
	if cfg.LoginEnabled() {
		idp = auth.NewPasswordGrant(cfg.IdP.Domain, cfg.IdP.ClientID, cfg.IdP.ClientSecret)
	} else {
		logger.Warn("IDP_DOMAIN or IDP_CLIENT_ID not set; POST /users/login is disabled")
	}

	router := NewRouter(Deps{
		Store:    db,
		Avatars:  avatars,
		Verifier: verifier,
		IdP:      idp,
	}, Options{
		PublicURL:         cfg.Server.PublicURL,
		RequestsPerMinute: cfg.Limits.RequestsPerMinute,
		LoginsPerMinute:   cfg.Limits.LoginsPerMinute,
		MaxUploadBytes:    cfg.Limits.MaxUploadBytes,
	}, logger)

	return &Server{
		router: router,
		config: cfg,
		logger:  logger,
		db:      db,
		avatars: avatars,
		cancel:  cancel,
	}, nil
}

func openAvatars(cfg config.StorageConfig) (*storage.BucketStorage, error) {
	if cfg.AvatarBucket != "" {
		return storage.OpenBucket(context.Background(), cfg.AvatarBucket)
	}
	return storage.OpenDir(cfg.AvatarDir)
}

// newVerifier builds the HMAC verifier when a shared secret is configured,
// otherwise an RS256 verifier over the provider's JWKS, refreshed until ctx
// is done.
func newVerifier(ctx context.Context, cfg config.IdPConfig) (auth.Verifier, error) {
	if cfg.UsesHMAC() {
		return auth.NewHMACVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience)
	}
	keys, err := auth.NewJWKSKeyfunc(ctx, auth.JWKSURL(cfg.Domain))
	if err != nil {
		return nil, err
	}
	return auth.NewJWKSVerifier(keys, cfg.Issuer, cfg.Audience), nil
}

// NewRouter builds the HTTP API.
//
//	GET    /health
//	POST   /users/login
//	GET    /users                    admin
//	GET    /users/{id}               self or admin
//	POST   /users/{id}/avatar        self
//	GET    /users/{id}/avatar        self
//	DELETE /users/{id}/avatar        self
//	POST   /courses                  admin
//	GET    /courses                  public
//	GET    /courses/{id}             public
//	PATCH  /courses/{id}             admin
//	DELETE /courses/{id}             admin
//	PATCH  /courses/{id}/students    admin or the course's instructor
//	GET    /courses/{id}/students    admin or the course's instructor
func NewRouter(deps Deps, opts Options, logger *slog.Logger) http.Handler {
	authz := service.NewAuthorizer(deps.Store, logger)
	enrollments := service.NewEnrollmentService(deps.Store, authz, logger)
	courses := service.NewCourseService(deps.Store, authz, enrollments, logger)
	users := service.NewUserService(deps.Store, authz, deps.Avatars, logger)

	links := handler.NewLinks(opts.PublicURL)
	healthHandler := handler.NewHealthHandler(deps.Store, logger)
	courseHandler := handler.NewCourseHandler(courses, links, logger)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollments, logger)
	userHandler := handler.NewUserHandler(users, links, opts.MaxUploadBytes, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(rateLimit(opts.RequestsPerMinute))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"Error":"Not found","code":"not_found"}`))
	})

	r.Get("/health", healthHandler.HandleHealth)

	if deps.IdP != nil {
		authHandler := handler.NewAuthHandler(service.NewAuthService(deps.IdP, logger), logger)
		r.With(rateLimit(opts.LoginsPerMinute)).Post("/users/login", authHandler.HandleLogin)
	}

	r.Get("/courses", courseHandler.HandleList)
	r.Get("/courses/{id}", courseHandler.HandleGet)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Verifier, logger))

		r.Get("/users", userHandler.HandleList)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Post("/users/{id}/avatar", userHandler.HandleUploadAvatar)
		r.Get("/users/{id}/avatar", userHandler.HandleGetAvatar)
		r.Delete("/users/{id}/avatar", userHandler.HandleDeleteAvatar)

		r.Post("/courses", courseHandler.HandleCreate)
		r.Patch("/courses/{id}", courseHandler.HandlePatch)
		r.Delete("/courses/{id}", courseHandler.HandleDelete)
		r.Patch("/courses/{id}/students", enrollmentHandler.HandleUpdate)
		r.Get("/courses/{id}/students", enrollmentHandler.HandleList)
	})

	return r
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(handler.TooManyRequests),
	)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// closes the database and avatar bucket.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.avatars.Close()
	defer s.cancel()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.config.Storage.DBPath),
			slog.String("avatars", avatarLocation(s.config.Storage)),
			slog.Bool("hmacTokens", s.config.IdP.UsesHMAC()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func avatarLocation(cfg config.StorageConfig) string {
	if cfg.AvatarBucket != "" {
		return cfg.AvatarBucket
	}
	return cfg.AvatarDir
}
