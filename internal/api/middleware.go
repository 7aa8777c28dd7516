package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/openbridge/internal/ids"
	"github.com/haasonsaas/openbridge/internal/observability"
)

// requestIDHeader is the correlation header accepted from clients and set on
// every reply.
const requestIDHeader = "X-Request-Id"

// withRequestID assigns the bridge request id: an inbound X-Request-Id is
// honored, otherwise a fresh one is minted. The id lands on the response
// header and the request context so every log line correlates.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = ids.NewRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireClientKey guards the /v1 routes. With no key configured the bridge
// is open; otherwise the credential arrives as a bearer Authorization header
// or a bare X-Api-Key header.
func (s *Server) requireClientKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.clientKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			header = r.Header.Get("X-Api-Key")
		}
		if header == "" {
			writeError(w, unauthorized("Missing client API key"))
			return
		}

		token := header
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			token = header[7:]
		}
		if strings.TrimSpace(token) != s.clientKey {
			writeError(w, unauthorized("Invalid client API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status a handler wrote. Flush forwards to the
// wrapped writer so the SSE path keeps its per-event flushing through the
// middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withTracing opens a server span per request so the upstream and store
// spans created further down nest under it.
func (s *Server) withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.TraceHTTPRequest(r.Context(), r.Method, r.URL.Path)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		s.tracer.SetAttributes(span, "http.status_code", recorder.status)
	})
}

// httpMetrics observes request counts and latency, keyed by the matched
// route pattern so per-response paths do not explode series cardinality.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			path = r.URL.Path
		}
		s.metrics.HTTPRequestCounter.WithLabelValues(path, r.Method, strconv.Itoa(recorder.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// recoverPanics converts a handler panic into a 500 and keeps the server up.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error(r.Context(), "handler panic",
					"panic", fmt.Sprint(rec),
					"path", r.URL.Path)
				writeError(w, internalError("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
