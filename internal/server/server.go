// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/chatdesk/internal/chat"
	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/store"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8787

	// MaxRequestBodySize is the default request body cap (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// DefaultSendTimeout bounds one POST /api/messages round trip.
	DefaultSendTimeout = 60 * time.Second

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Gateway is the completion service used by POST /api/chat.
type Gateway interface {
	chat.Completer
	IsConfigured() bool
}

// Options configures a Server.
type Options struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	AuthToken      string
	SendTimeout    time.Duration
}

// OptionsFromConfig maps the [server] config section onto Options.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		AuthToken:      cfg.AuthToken,
	}
}

// Server exposes the store, the send workflow, and the gateway over HTTP.
type Server struct {
	opts     Options
	store    *store.Store
	workflow *chat.Workflow
	gateway  Gateway
	logger   *zap.Logger
	limiter  *RateLimiter

	router  *http.ServeMux
	handler http.Handler
	server  *http.Server
	started time.Time

	requests atomic.Int64
}

// New creates a Server. logger may be nil.
func New(opts Options, st *store.Store, wf *chat.Workflow, gw Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxRequestBodySize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}

	s := &Server{
		opts:     opts,
		store:    st,
		workflow: wf,
		gateway:  gw,
		logger:   logger.Named("server"),
		router:   http.NewServeMux(),
		started:  time.Now(),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	s.setupRoutes()
	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(DefaultCORSConfig(opts.AllowedOrigins)),
		SecurityHeadersMiddleware(),
		RateLimitMiddleware(s.limiter, s.logger),
		AuthMiddleware(opts.AuthToken, s.logger),
		s.countRequests,
	)(s.router)
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	// Completion proxy
	s.router.HandleFunc("POST /api/chat", s.handleChatCompletion)

	// State
	s.router.HandleFunc("GET /api/state", s.handleState)
	s.router.HandleFunc("PATCH /api/ui", s.handlePanels)

	// Chats
	s.router.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.router.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.router.HandleFunc("PATCH /api/chats/{id}", s.handleRenameChat)
	s.router.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.router.HandleFunc("POST /api/chats/{id}/activate", s.handleActivateChat)

	// Send workflow
	s.router.HandleFunc("POST /api/messages", s.handleSendMessage)

	// Todos
	s.router.HandleFunc("GET /api/todos", s.handleListTodos)
	s.router.HandleFunc("POST /api/todos", s.handleAddTodo)
	s.router.HandleFunc("POST /api/todos/{id}/toggle", s.handleToggleTodo)
	s.router.HandleFunc("DELETE /api/todos/{id}", s.handleDeleteTodo)

	// Health
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run serves until ctx is cancelled, then shuts down gracefully. Idle rate
// limiter buckets are swept in the background.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.opts.SendTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	if s.logger.Core().Enabled(zap.DebugLevel) {
		unsubscribe := s.store.Subscribe(s.logCommit)
		defer unsubscribe()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server started",
			zap.String("addr", ln.Addr().String()),
			zap.String("version", Version))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	if s.limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := s.limiter.Sweep(); n > 0 {
						s.logger.Debug("rate limiter swept", zap.Int("clients", n))
					}
				}
			}
		})
	}

	return g.Wait()
}

// logCommit records each committed store mutation.
func (s *Server) logCommit(state store.State) {
	s.logger.Debug("state committed",
		zap.Uint64("revision", state.Revision),
		zap.Int("chats", len(state.Chats)),
		zap.Int("todos", len(state.Todos)),
		zap.String("active", state.ActiveChatID))
}

// Shutdown gracefully shuts down the server and waits for in-flight sends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("server shutting down", zap.Int64("requests", s.requests.Load()))
	err := s.server.Shutdown(ctx)
	if s.workflow != nil {
		s.workflow.Wait()
	}
	return err
}
