// Package server provides the HTTP server for the session engine's
// v2 API (spec.md §6).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/subscription"
)

// Options holds the bits of server behavior not already captured by
// *config.Config (timeouts, CORS) — everything domain-specific comes
// from cfg and the collaborators passed to New.
type Options struct {
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions returns sane HTTP server defaults. WriteTimeout is
// zero: SSE responses (`/prompt`, `/follow`) can run far longer than
// any fixed timeout would allow.
func DefaultOptions() Options {
	return Options{EnableCORS: true, ReadTimeout: 30 * time.Second, WriteTimeout: 0}
}

// Server is the HTTP server over the session engine.
type Server struct {
	opts    Options
	cfg     *config.Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	transcript *storage.TranscriptStore
	queue      *storage.QueueStore
	manager    *session.Manager
	hub        *subscription.Hub
	runners    *runner.Registry
}

// New wires a Server over the engine's collaborators and registers
// its full v2 route table.
func New(cfg *config.Config, opts Options, transcript *storage.TranscriptStore, queue *storage.QueueStore, manager *session.Manager, hub *subscription.Hub, runners *runner.Registry) *Server {
	s := &Server{
		opts:       opts,
		cfg:        cfg,
		router:     chi.NewRouter(),
		log:        logging.Component("server"),
		transcript: transcript,
		queue:      queue,
		manager:    manager,
		hub:        hub,
		runners:    runners,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.opts.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start blocks serving HTTP on cfg.Host:cfg.Port.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, including any
// open SSE streams, until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }
