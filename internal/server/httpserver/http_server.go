// Package httpserver wires the trigger server's handlers onto a single listener.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	handlers "git.home.luguber.info/inful/pagesdeploy/internal/server/handlers"
	smw "git.home.luguber.info/inful/pagesdeploy/internal/server/middleware"
)

const defaultWebhookPath = "/webhook"

// Options supplies the runtime pieces the handlers read from.
type Options struct {
	Submitter handlers.Submitter
	Active    handlers.ActiveRuns
	Jobs      handlers.JobLookup
	// History is optional; /runs returns no history without it.
	History handlers.RunHistory
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Server serves the webhook, run status, health and metrics endpoints.
type Server struct {
	config       pipeline.ConfigSource
	opts         Options
	errorAdapter *derrors.HTTPErrorAdapter
	startTime    time.Time

	monitoringHandlers *handlers.MonitoringHandlers
	runHandlers        *handlers.RunHandlers
	webhookHandlers    *handlers.WebhookHandlers

	mchain func(http.Handler) http.Handler

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
}

// New constructs a server. Listen address and webhook path are read from src when
// the server starts; the webhook secret and watched branch on every delivery.
func New(src pipeline.ConfigSource, opts Options) *Server {
	s := &Server{
		config:       src,
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
		startTime:    time.Now(),
	}

	s.monitoringHandlers = handlers.NewMonitoringHandlers(opts.Active, s.startTime)
	s.runHandlers = handlers.NewRunHandlers(opts.Active, opts.Jobs, opts.History)
	s.webhookHandlers = handlers.NewWebhookHandlers(src, opts.Submitter)

	s.mchain = smw.Chain(slog.Default(), s.errorAdapter)
	return s
}

func normalizeWebhookPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return defaultWebhookPath
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// Handler returns the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(normalizeWebhookPath(s.config.Current().Server.WebhookPath), s.webhookHandlers.HandlePush)
	mux.HandleFunc("/healthz", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/runs", s.runHandlers.HandleList)
	mux.HandleFunc("/runs/{id}", s.runHandlers.HandleGet)
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	return s.mchain(mux)
}

// Start binds the configured address and serves in the background. Bind errors are
// returned before anything is served.
func (s *Server) Start(ctx context.Context) error {
	address := s.config.Current().Server.Address

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "failed to bind trigger server").
			WithContext("address", address).
			Build()
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Trigger server error", logfields.Error(err))
		}
	}()

	slog.Info("Trigger server started",
		slog.String("address", ln.Addr().String()),
		logfields.Path(normalizeWebhookPath(s.config.Current().Server.WebhookPath)))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("trigger server shutdown: %w", err)
	}
	return nil
}
