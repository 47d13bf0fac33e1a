// Package server is the composition root: it opens the database, builds the
// cache, services and handlers, mounts the routes and runs the HTTP server
// with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lunahub/scripthub/internal/auth"
	"github.com/lunahub/scripthub/internal/cache"
	"github.com/lunahub/scripthub/internal/config"
	"github.com/lunahub/scripthub/internal/handler"
	"github.com/lunahub/scripthub/internal/middleware"
	sqliteRepo "github.com/lunahub/scripthub/internal/repository/sqlite"
	"github.com/lunahub/scripthub/internal/service"
)

// Server owns the long-lived resources: the database connection, the script
// cache and the rate limiters. All are released when Start returns.
type Server struct {
	router   *chi.Mux
	cfg      config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	cache    *cache.ScriptCache
	limiters []*middleware.RateLimiter
}

// New wires the full dependency chain: sqlite.DB → services → handlers →
// routes. Each layer only sees the one below it — handlers never touch the
// database, services never touch HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		cache:  cache.New(cfg.CacheTTL),
	}

	if err := s.setupRoutes(); err != nil {
		s.cache.Stop()
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures the middleware stack and mounts every route.
//
// Middleware order: RequestID → RealIP → Recoverer → request logging, then
// the per-group rate limiters and auth middleware inside the route groups.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.JWTExpiry)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	scriptSvc := service.NewScriptService(s.db, s.db, s.cache, service.ScriptConfig{
		MaxCodeLength:   s.cfg.MaxScriptSize,
		DuplicateWindow: s.cfg.DuplicateWindow,
	}, s.logger)
	authSvc := service.NewAuthService(s.db, tokens, s.logger)

	scriptHandler := handler.NewScriptHandler(scriptSvc, authSvc, s.logger)

	var roblox *auth.RobloxProvider
	if s.cfg.RobloxClientID != "" && s.cfg.RobloxClientSecret != "" && s.cfg.RobloxCallbackURL != "" {
		roblox = auth.NewRobloxProvider(s.cfg.RobloxClientID, s.cfg.RobloxClientSecret, s.cfg.RobloxCallbackURL)
	}
	authHandler := handler.NewAuthHandler(roblox, authSvc, s.cfg.JWTExpiry, s.logger)

	apiLimiter := s.newLimiter(s.cfg.APIRateLimit, s.cfg.APIRateWindow)
	authLimiter := s.newLimiter(s.cfg.AuthRateLimit, s.cfg.APIRateWindow)
	uploadLimiter := s.newLimiter(s.cfg.UploadRateLimit, s.cfg.UploadRateWindow)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if roblox != nil {
		s.router.Route("/auth/roblox", func(r chi.Router) {
			r.Use(authLimiter.Handler)
			r.Get("/login", authHandler.HandleRobloxLogin)
			r.Get("/callback", authHandler.HandleRobloxCallback)
		})
	}
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Handler)

		r.With(authLimiter.Handler).Post("/auth/login", authHandler.HandleLogin)

		r.Get("/scripts", scriptHandler.HandleList)
		r.Get("/scripts/trending", scriptHandler.HandleTrending)
		r.Get("/scripts/search", scriptHandler.HandleSearch)
		r.Get("/scripts/{id}", scriptHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.With(uploadLimiter.Handler).Post("/scripts", scriptHandler.HandleCreate)
			r.Put("/scripts/{id}", scriptHandler.HandleUpdate)
			r.Delete("/scripts/{id}", scriptHandler.HandleDelete)
			r.Post("/scripts/{id}/like", scriptHandler.HandleLike)
			r.Get("/me", authHandler.HandleMe)
			r.Get("/auth/verify", authHandler.HandleMe)
		})
	})

	return nil
}

func (s *Server) newLimiter(limit int, window time.Duration) *middleware.RateLimiter {
	l := middleware.NewRateLimiter(limit, window)
	s.limiters = append(s.limiters, l)
	return l
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests, stop the
// cache and limiters, close the database.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.cache.Stop()
	defer func() {
		for _, l := range s.limiters {
			l.Stop()
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
