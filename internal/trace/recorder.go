package trace

import (
	"context"
	"time"

	"github.com/haasonsaas/openbridge/internal/observability"
)

func unixNow() int64 { return time.Now().Unix() }

// Recorder is the capture facade handlers talk to. A nil Recorder (tracing
// disabled) accepts every call and does nothing, so call sites stay
// unconditional.
type Recorder struct {
	store Store
	cfg   SanitizeConfig
	log   *observability.Logger
	now   func() int64
}

// NewRecorder wraps a store with a sanitize config.
func NewRecorder(store Store, cfg SanitizeConfig, log *observability.Logger) *Recorder {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Recorder{store: store, cfg: cfg, log: log, now: unixNow}
}

// Enabled reports whether captures go anywhere.
func (r *Recorder) Enabled() bool {
	return r != nil && r.store != nil
}

// Capture sanitizes the payload fields of a record and persists it. Capture
// is best effort: a failing store logs a warning and never fails the
// request being traced.
func (r *Recorder) Capture(ctx context.Context, record *Record) {
	if !r.Enabled() || record == nil {
		return
	}

	now := r.now()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	record.ResponsesRequest = r.sanitizeObject(record.ResponsesRequest)
	record.ChatRequest = r.sanitizeObject(record.ChatRequest)
	record.ResponsesResponse = r.sanitizeObject(record.ResponsesResponse)
	record.AssistantMessage = r.sanitizeObject(record.AssistantMessage)
	record.Upstream = r.sanitizeObject(record.Upstream)
	record.Error = r.sanitizeObject(record.Error)
	for i, msg := range record.MessagesForState {
		record.MessagesForState[i] = r.sanitizeObject(msg)
	}

	if err := r.store.Set(ctx, record); err != nil {
		r.log.Warn(ctx, "trace capture failed",
			"request_id", record.RequestID,
			"error", err.Error())
	}
}

// Lookup resolves an id against captured records, trying the request id
// first and falling back to the response id.
func (r *Recorder) Lookup(ctx context.Context, id string) (*Record, error) {
	if !r.Enabled() {
		return nil, ErrNotFound
	}
	record, err := r.store.GetByRequestID(ctx, id)
	if err == nil {
		return record, nil
	}
	return r.store.GetByResponseID(ctx, id)
}

// Close releases the underlying store.
func (r *Recorder) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.store.Close()
}

func (r *Recorder) sanitizeObject(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	sanitized, _ := Sanitize(obj, r.cfg).(map[string]any)
	return sanitized
}
