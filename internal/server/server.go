package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/clicks"
	"github.com/sundayezeilo/shortly/internal/config"
	"github.com/sundayezeilo/shortly/internal/httpx"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/media"
	"github.com/sundayezeilo/shortly/internal/notifications"
)

// Handlers groups the HTTP handlers the server routes to. Media is optional.
type Handlers struct {
	Links         *links.Handler
	Clicks        *clicks.Handler
	Achievements  *achievements.Handler
	Notifications *notifications.Handler
	Media         *media.Handler
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	handlers Handlers
	server   *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, handlers Handlers) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		handlers: handlers,
	}
}

// Handler returns the routed mux wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.gracefulShutdown()

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.gracefulShutdown()
	}
}

func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close server: %w", closeErr)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /x/health", s.healthCheckHandler)

	mux.HandleFunc("POST /api/links", s.handlers.Links.CreateLink)
	mux.HandleFunc("GET /api/links", s.handlers.Links.ListPublic)
	mux.HandleFunc("GET /api/links/{code}", s.handlers.Links.GetLink)
	mux.HandleFunc("POST /api/links/verify-password", s.handlers.Links.VerifyPassword)
	mux.HandleFunc("POST /api/links/{code}/deactivate", s.handlers.Links.Deactivate)
	mux.HandleFunc("POST /api/links/{code}/restore", s.handlers.Links.Restore)
	mux.HandleFunc("PATCH /api/links/{code}/privacy", s.handlers.Links.TogglePrivacy)
	mux.HandleFunc("POST /api/links/{code}/password", s.handlers.Links.SetPassword)
	mux.HandleFunc("PUT /api/links/{code}/password", s.handlers.Links.ChangePassword)
	mux.HandleFunc("DELETE /api/links/{code}/password", s.handlers.Links.RemovePassword)
	mux.HandleFunc("GET /api/users/{id}/links", s.handlers.Links.ListByOwner)

	mux.HandleFunc("GET /r/{code}", s.handlers.Clicks.Redirect)

	mux.HandleFunc("GET /api/users/{id}/achievements", s.handlers.Achievements.ListForUser)

	mux.HandleFunc("GET /api/notifications", s.handlers.Notifications.List)
	mux.HandleFunc("GET /api/notifications/unread", s.handlers.Notifications.Unread)
	mux.HandleFunc("POST /api/notifications/read", s.handlers.Notifications.MarkRead)

	if s.handlers.Media != nil {
		mux.HandleFunc("POST /api/media/upload-url", s.handlers.Media.UploadURL)
		mux.HandleFunc("DELETE /api/media", s.handlers.Media.Delete)
	}

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger), // outermost: catch panics
		httpx.RequestID,
		httpx.Logger(s.logger),
		httpx.CORS(s.config.Server.AllowedOrigins),
	)(handler)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.Service.Name,
		"version": s.config.Service.Version,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
