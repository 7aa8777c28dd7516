// Package api implements the bridge's HTTP surface: the /v1/responses
// orchestrator plus the stored-turn, trace, and operational endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/openbridge/internal/observability"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/state"
	"github.com/haasonsaas/openbridge/internal/streaming"
	"github.com/haasonsaas/openbridge/internal/tools"
	"github.com/haasonsaas/openbridge/internal/trace"
)

// Options wires a Server. Upstream is required; everything else falls back
// to a safe default (disabled store, no-op logger and metrics).
type Options struct {
	// ClientAPIKey, when set, is required from clients on the /v1 routes.
	ClientAPIKey string

	// ModelMap rewrites client model aliases to upstream identifiers.
	ModelMap map[string]string

	// MaxTokensBuffer is the reasoning headroom added to max_output_tokens.
	MaxTokensBuffer int

	// DegradeFields are the optional payload fields dropped and replayed
	// when an upstream rejection names them.
	DegradeFields []string

	// Version is reported by GET /version.
	Version string

	Upstream *openrouter.Client
	Runner   *streaming.Runner
	Registry *tools.Registry
	Store    state.Store
	Traces   *trace.Recorder
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// Server carries the wired collaborators of the HTTP surface.
type Server struct {
	clientKey       string
	modelMap        map[string]string
	maxTokensBuffer int
	degradeFields   []string
	version         string

	upstream *openrouter.Client
	runner   *streaming.Runner
	registry *tools.Registry
	store    state.Store
	traces   *trace.Recorder
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	httpServer *http.Server
}

// NewServer builds the HTTP surface from options.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	store := opts.Store
	if store == nil {
		store = state.NewDisabledStore()
	}
	runner := opts.Runner
	if runner == nil {
		runner = streaming.NewRunner(opts.Upstream, streaming.RunnerOptions{
			Logger:  log,
			Metrics: metrics,
		})
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "openbridge"})
	}

	return &Server{
		clientKey:       opts.ClientAPIKey,
		modelMap:        opts.ModelMap,
		maxTokensBuffer: opts.MaxTokensBuffer,
		degradeFields:   opts.DegradeFields,
		version:         version,
		upstream:        opts.Upstream,
		runner:          runner,
		registry:        registry,
		store:           store,
		traces:          opts.Traces,
		log:             log,
		metrics:         metrics,
		tracer:          tracer,
	}
}

// Handler assembles the route table and the middleware chain around it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/responses", s.requireClientKey(http.HandlerFunc(s.handleCreateResponse)))
	mux.Handle("GET /v1/responses/{id}", s.requireClientKey(http.HandlerFunc(s.handleGetResponse)))
	mux.Handle("DELETE /v1/responses/{id}", s.requireClientKey(http.HandlerFunc(s.handleDeleteResponse)))
	mux.Handle("GET /v1/traces/{id}", s.requireClientKey(http.HandlerFunc(s.handleGetTrace)))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = s.recoverPanics(handler)
	handler = s.httpMetrics(handler)
	handler = s.withTracing(handler)
	handler = withRequestID(handler)
	return handler
}

// Start binds the address and serves in the background. With cert and key
// paths set the listener speaks TLS.
func (s *Server) Start(addr, certFile, keyFile string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server

	go func() {
		var serveErr error
		if certFile != "" && keyFile != "" {
			serveErr = server.ServeTLS(listener, certFile, keyFile)
		} else {
			serveErr = server.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Error(context.Background(), "http server error", "error", serveErr.Error())
		}
	}()

	s.log.Info(context.Background(), "http server started", "addr", addr, "tls", certFile != "")
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
