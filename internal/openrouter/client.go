package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/haasonsaas/openbridge/internal/backoff"
	"github.com/haasonsaas/openbridge/internal/observability"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// maxErrorBody caps how much of an upstream error reply is read.
const maxErrorBody = 1 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the API root; /chat/completions is appended.
	BaseURL string

	// APIKey is the upstream bearer credential.
	APIKey string

	// Referer and Title are OpenRouter's optional attribution headers
	// (HTTP-Referer and X-Title). Sent only when non-empty.
	Referer string
	Title   string

	// Timeout bounds a single-shot call end to end, and the
	// headers-received deadline for streaming calls.
	Timeout time.Duration

	// Policy and Stop drive the retry loop for transient failures.
	Policy backoff.BackoffPolicy
	Stop   backoff.Stop

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the upstream Chat Completions endpoint. A single instance is
// shared by all requests; it holds no per-call state.
type Client struct {
	endpoint string
	apiKey   string
	referer  string
	title    string
	timeout  time.Duration
	policy   backoff.BackoffPolicy
	stop     backoff.Stop
	http     *http.Client
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// New builds a Client from options, filling defaults for anything unset.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Policy == (backoff.BackoffPolicy{}) {
		opts.Policy = backoff.PolicyFromSeconds(0.5, 15)
	}
	if opts.Stop == (backoff.Stop{}) {
		opts.Stop = backoff.Stop{MaxAttempts: 2, MaxElapsed: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NopMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "openbridge"})
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: opts.Timeout,
			},
		}
	}

	return &Client{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		apiKey:   opts.APIKey,
		referer:  opts.Referer,
		title:    opts.Title,
		timeout:  opts.Timeout,
		policy:   opts.Policy,
		stop:     opts.Stop,
		http:     httpClient,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
}

// CreateChatCompletion posts the payload and decodes the completion.
// Transient failures (retryable statuses and transport errors) are retried
// per the configured policy; the last error is returned unwrapped so callers
// can inspect upstream status and body.
func (c *Client) CreateChatCompletion(ctx context.Context, payload map[string]any) (*ChatCompletion, error) {
	model, _ := payload["model"].(string)
	ctx, span := c.tracer.TraceUpstreamCall(ctx, model, false)
	defer span.End()

	completion, err := backoff.Retry(ctx, c.policy, c.stop, func(attempt int) (*ChatCompletion, error) {
		if attempt > 1 {
			c.metrics.UpstreamRetryCounter.Inc()
			c.log.Info(ctx, "retrying upstream call", "attempt", attempt)
		}
		return c.createOnce(ctx, payload)
	})
	if err != nil {
		c.tracer.RecordError(span, err)
		return nil, err
	}
	return completion, nil
}

func (c *Client) createOnce(ctx context.Context, payload map[string]any) (*ChatCompletion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.UpstreamRequestCounter.WithLabelValues("transport_error", "false").Inc()
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	c.metrics.UpstreamRequestCounter.WithLabelValues(strconv.Itoa(resp.StatusCode), "false").Inc()
	c.metrics.UpstreamRequestDuration.WithLabelValues("false").Observe(time.Since(start).Seconds())

	requestID := resp.Header.Get("X-Request-Id")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode >= 400 {
		se := parseErrorBody(resp.StatusCode, body, requestID)
		c.log.Warn(ctx, "upstream call failed",
			"status", resp.StatusCode,
			"upstream_request_id", requestID,
			"message", se.Message)
		return nil, se
	}

	var completion ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decode upstream completion: %w", err)
	}

	c.log.Debug(ctx, "upstream call succeeded",
		"upstream_request_id", requestID,
		"choices", len(completion.Choices),
		"latency_ms", time.Since(start).Milliseconds())
	c.metrics.ObserveUsage(completion.Usage)
	return &completion, nil
}

// OpenStream posts the payload with streaming enabled and returns the live
// stream once upstream headers arrive. A non-2xx reply is drained into a
// StatusError. OpenStream itself never retries; callers that have not yet
// emitted anything downstream may call it again on a retryable error.
func (c *Client) OpenStream(ctx context.Context, payload map[string]any) (*ChatStream, error) {
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.UpstreamRequestCounter.WithLabelValues("transport_error", "true").Inc()
		return nil, &transportError{err: err}
	}

	c.metrics.UpstreamRequestCounter.WithLabelValues(strconv.Itoa(resp.StatusCode), "true").Inc()
	c.metrics.UpstreamRequestDuration.WithLabelValues("true").Observe(time.Since(start).Seconds())

	requestID := resp.Header.Get("X-Request-Id")
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		se := parseErrorBody(resp.StatusCode, body, requestID)
		c.log.Warn(ctx, "upstream stream rejected",
			"status", resp.StatusCode,
			"upstream_request_id", requestID,
			"message", se.Message)
		return nil, se
	}

	c.log.Debug(ctx, "upstream stream opened", "upstream_request_id", requestID)
	return newChatStream(resp.Body, requestID), nil
}

func (c *Client) newRequest(ctx context.Context, payload map[string]any) (*http.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	c.tracer.InjectContext(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}
