// Package httpserver provides the HTTP evaluation API served by deke serve.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/deke/internal/config"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/history"
	"github.com/relicta-tech/deke/internal/httpserver/handlers"
	"github.com/relicta-tech/deke/internal/observability"
	"github.com/relicta-tech/deke/internal/policy"
)

const shutdownTimeout = 30 * time.Second

// Server is the HTTP evaluation API.
type Server struct {
	config     config.ServerConfig
	router     chi.Router
	httpServer *http.Server
	handlers   *handlers.Handlers
	logger     *slog.Logger
	listener   net.Listener
}

// ServerDeps contains dependencies for creating a new server.
type ServerDeps struct {
	Config     config.ServerConfig
	Policies   config.PoliciesConfig
	Evaluation config.EvaluationConfig
	Executor   *expr.Executor
	Sets       []*policy.Set
	Metrics    *observability.Metrics
	Tracer     observability.Tracer
	Logger     *slog.Logger
	Version    string
	History    *history.Store
}

// NewServer creates a new HTTP server.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: deps.Config,
		logger: logger.With("component", "httpserver"),
		handlers: handlers.New(handlers.Deps{
			Executor:   deps.Executor,
			Sets:       deps.Sets,
			Policies:   deps.Policies,
			Evaluation: deps.Evaluation,
			Metrics:    deps.Metrics,
			Tracer:     deps.Tracer,
			Logger:     logger,
			Version:    deps.Version,
			History:    deps.History,
		}),
	}

	s.router = s.setupRouter()

	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadTimeout:       s.getReadTimeout(),
		ReadHeaderTimeout: s.getReadTimeout(),
		WriteTimeout:      s.getWriteTimeout(),
		IdleTimeout:       s.getIdleTimeout(),
	}

	return s
}

// Listen binds the server's address. Start calls it when it has not been
// called yet.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return dekeerrors.IOWrap(err, "httpserver.Listen", "failed to listen on "+s.config.Address)
	}
	s.listener = listener
	return nil
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("serving evaluation API", "address", s.Address())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		// The request context is gone; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx) //nolint:contextcheck
	case err := <-errChan:
		if err != nil {
			return dekeerrors.IOWrap(err, "httpserver.Start", "server failed")
		}
		return nil
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down evaluation API")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Address returns the bound address once listening, else the configured one.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) getReadTimeout() time.Duration {
	if s.config.ReadTimeout > 0 {
		return s.config.ReadTimeout
	}
	return 15 * time.Second
}

func (s *Server) getWriteTimeout() time.Duration {
	if s.config.WriteTimeout > 0 {
		return s.config.WriteTimeout
	}
	return 15 * time.Second
}

func (s *Server) getIdleTimeout() time.Duration {
	if s.config.IdleTimeout > 0 {
		return s.config.IdleTimeout
	}
	return 60 * time.Second
}
