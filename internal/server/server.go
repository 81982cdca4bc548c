// Package server exposes the webhook endpoint over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/dispatcher"
	"github.com/edgard/stashbot/internal/logger"
)

// HeaderSecretToken carries the secret configured with setWebhook.
const HeaderSecretToken = "X-Telegram-Bot-Api-Secret-Token"

const (
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// UpdateHandler processes one raw webhook update.
type UpdateHandler interface {
	Handle(ctx context.Context, raw []byte) dispatcher.Outcome
}

// Pinger checks a dependency's health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the webhook HTTP server.
type Server struct {
	echo    *echo.Echo
	cfg     config.ServerConfig
	secret  string
	handler UpdateHandler
	pinger  Pinger
	logger  *slog.Logger
}

// New builds the server and registers its routes. An empty secret disables
// the secret token check.
func New(cfg config.ServerConfig, secret string, handler UpdateHandler, pinger Pinger, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(logger.Middleware(log))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	s := &Server{
		echo:    e,
		cfg:     cfg,
		secret:  secret,
		handler: handler,
		pinger:  pinger,
		logger:  log,
	}
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST(s.cfg.WebhookPath, s.Webhook)
	e.GET("/healthz", s.Health)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", "addr", s.cfg.Addr, "path", s.cfg.WebhookPath)
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("Webhook server failed", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down webhook server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Webhook handles an update delivery. Once authenticated it always answers
// 200 so the platform does not redeliver; the outcome is in the body.
func (s *Server) Webhook(c echo.Context) error {
	req := c.Request()
	if s.secret != "" && subtle.ConstantTimeCompare([]byte(req.Header.Get(HeaderSecretToken)), []byte(s.secret)) != 1 {
		s.logger.WarnContext(req.Context(), "Rejected webhook with invalid secret token", "remote_ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid secret token"})
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.logger.WarnContext(req.Context(), "Failed to read webhook body", "error", err)
		body = nil
	}

	ctx := req.Context()
	if s.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandlerTimeout)
		defer cancel()
	}

	return c.JSON(http.StatusOK, s.handler.Handle(ctx, body))
}

// Health reports whether the store is reachable.
func (s *Server) Health(c echo.Context) error {
	if s.pinger == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
