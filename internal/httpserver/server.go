package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/derefd/internal/config"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/mw"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/routes"
	"github.com/MrSnakeDoc/derefd/internal/logger"
)

const defaultRequestTimeout = 10 * time.Second

// Server is the HTTP front of derefd.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

// NewRouter builds the router: global middlewares first, then every route
// group registered by the routes package.
func NewRouter(loggerClient logger.Logger, d deps.Deps) chi.Router {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(mw.Log(loggerClient, d.Metrics))

	routes.RegisterAll(r, d)
	return r
}

// New builds the server for cfg. Write timeouts leave room for the request
// deadline so enhance calls can answer 504 themselves.
func New(cfg config.HTTP, loggerClient logger.Logger, d deps.Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = cfg.RequestTimeout
	}
	writeTimeout := max(d.RequestTimeout, defaultRequestTimeout) + 5*time.Second

	return &Server{
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(loggerClient, d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger: loggerClient,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens on the configured address and serves until Stop. A closed
// server is not an error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", logger.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
