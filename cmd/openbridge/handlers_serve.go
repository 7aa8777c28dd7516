package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/openbridge/internal/api"
	"github.com/haasonsaas/openbridge/internal/backoff"
	"github.com/haasonsaas/openbridge/internal/config"
	"github.com/haasonsaas/openbridge/internal/observability"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/state"
	"github.com/haasonsaas/openbridge/internal/streaming"
	"github.com/haasonsaas/openbridge/internal/trace"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// serveOptions are the command-line overrides applied on top of the loaded
// configuration.
type serveOptions struct {
	ConfigPath string
	Host       string
	Port       int
	Debug      bool
}

// runServe implements the serve command logic. It wires configuration into
// the upstream client, the stores, and the HTTP surface, then blocks until
// a shutdown signal arrives.
func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()

	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "openbridge",
		ServiceVersion: version,
		Environment:    cfg.Otel.Environment,
		Endpoint:       cfg.Otel.Endpoint,
		SamplingRate:   cfg.Otel.SamplingRate,
		EnableInsecure: cfg.Otel.Insecure,
	})

	log.Info(ctx, "starting openbridge",
		"version", version,
		"commit", commit,
		"config", opts.ConfigPath,
		"upstream", cfg.Upstream.BaseURL,
	)

	aliases, err := cfg.ModelAliases()
	if err != nil {
		return fmt.Errorf("failed to load model map: %w", err)
	}

	store, err := state.New(ctx, state.Options{
		Backend:  cfg.State.Backend,
		RedisURL: cfg.State.RedisURL,
		TTL:      cfg.State.TTL(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	defer store.Close()

	recorder, err := buildTraceRecorder(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize trace store: %w", err)
	}
	if recorder != nil {
		defer recorder.Close()
	}

	policy := backoff.PolicyFromSeconds(cfg.Upstream.RetryBackoff, cfg.Upstream.RetryMaxSeconds)
	stop := backoff.Stop{
		MaxAttempts: cfg.Upstream.RetryMaxAttempts,
		MaxElapsed:  cfg.Upstream.RetryMaxElapsed(),
	}

	client := openrouter.New(openrouter.Options{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Referer: cfg.Upstream.HTTPReferer,
		Title:   cfg.Upstream.XTitle,
		Timeout: cfg.Upstream.RequestTimeout(),
		Policy:  policy,
		Stop:    stop,
		Logger:  log,
		Metrics: metrics,
		Tracer:  tracer,
	})

	runner := streaming.NewRunner(client, streaming.RunnerOptions{
		Policy:  policy,
		Stop:    stop,
		Logger:  log,
		Metrics: metrics,
	})

	server := api.NewServer(api.Options{
		ClientAPIKey:    cfg.Server.ClientAPIKey,
		ModelMap:        aliases,
		MaxTokensBuffer: cfg.Translate.MaxTokensBuffer,
		DegradeFields:   cfg.Upstream.DegradeFields,
		Version:         version,
		Upstream:        client,
		Runner:          runner,
		Store:           store,
		Traces:          recorder,
		Logger:          log,
		Metrics:         metrics,
		Tracer:          tracer,
	})

	// Cancel on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(cfg.Addr(), cfg.Server.SSLCertfile, cfg.Server.SSLKeyfile); err != nil {
		return err
	}

	log.Info(ctx, "openbridge started",
		"addr", cfg.Addr(),
		"tls", cfg.TLSEnabled(),
		"state_backend", cfg.State.Backend,
		"trace_enabled", cfg.Trace.Enabled,
	)

	// Block until a shutdown signal arrives.
	<-ctx.Done()
	log.Info(ctx, "shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := stopTracer(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "tracer shutdown failed", "error", err.Error())
	}

	log.Info(shutdownCtx, "openbridge stopped gracefully")
	return nil
}

// buildTraceRecorder assembles the request-trace recorder, or returns nil
// when tracing is disabled. The redis backend shares the state store's
// connection string.
func buildTraceRecorder(ctx context.Context, cfg *config.Config, log *observability.Logger) (*trace.Recorder, error) {
	if !cfg.Trace.Enabled {
		return nil, nil
	}

	var traceStore trace.Store
	switch cfg.Trace.Backend {
	case config.StateBackendRedis:
		store, err := trace.NewRedisStore(ctx, cfg.State.RedisURL, cfg.Trace.TTL())
		if err != nil {
			return nil, err
		}
		traceStore = store
	default:
		traceStore = trace.NewMemoryStore(cfg.Trace.MaxEntries, cfg.Trace.TTL())
	}

	sanitize := trace.SanitizeConfig{
		ContentMode:   cfg.Trace.ContentMode,
		MaxChars:      cfg.Trace.MaxChars,
		RedactSecrets: true,
	}
	return trace.NewRecorder(traceStore, sanitize, log), nil
}
