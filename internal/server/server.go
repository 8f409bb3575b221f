// Package server provides the HTTP server shell and middleware shared by
// every route of the tool server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Dmi3yy/webui-pipes/internal/metrics"
)

// DefaultRequestTimeout bounds a request when no timeout is configured.
const DefaultRequestTimeout = 10 * time.Minute

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

// New builds a router with request ids, logging, metrics, timeouts, panic
// recovery and tracing. Authentication is applied per route group.
func New(port int, logger *slog.Logger, requestTimeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "webui-pipes")
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
		http: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens on the configured port and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
