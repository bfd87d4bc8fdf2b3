package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wayfarer-tours/apiserver/config"
	"github.com/wayfarer-tours/apiserver/internal/auth"
	"github.com/wayfarer-tours/apiserver/internal/db"
	"github.com/wayfarer-tours/apiserver/internal/handlers"
	"github.com/wayfarer-tours/apiserver/internal/notify"
	"github.com/wayfarer-tours/apiserver/internal/services"
	"github.com/wayfarer-tours/apiserver/internal/storage"
	"github.com/wayfarer-tours/apiserver/internal/store"
)

const throttleLimit = 100

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mailer     *notify.Mailer
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mailer, err := notify.New(ctx, cfg.Notify)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = mailer.Close()
		_ = dbConn.Close()
		return nil, err
	}
	if err := avatars.EnsureBucket(ctx); err != nil {
		_ = mailer.Close()
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	clock := auth.SystemClock{}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock)

	authService := services.NewAuthService(userRepo, mailer, tokens, clock, cfg.Auth.ResetWindow, cfg.BaseURL)
	userService := services.NewUserService(userRepo, avatars)

	authHandler := handlers.NewAuthHandler(authService, cfg.Auth.CookieTTL)
	userHandler := handlers.NewUserHandler(userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Throttle(throttleLimit),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler, authHandler.RequireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mailer:     mailer,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.mailer != nil {
		_ = s.mailer.Close()
	}
	return s.httpServer.Close()
}
