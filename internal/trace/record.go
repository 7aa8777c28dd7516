package trace

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when neither id resolves to a captured record.
var ErrNotFound = errors.New("trace not found")

// Record is one captured bridge request. Every payload field holds the
// sanitized form; raw requests and upstream replies never reach a store.
type Record struct {
	RequestID  string `json:"request_id"`
	ResponseID string `json:"response_id,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`

	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	Stream *bool  `json:"stream,omitempty"`

	ResponsesRequest  map[string]any    `json:"responses_request,omitempty"`
	ChatRequest       map[string]any    `json:"chat_request,omitempty"`
	MessagesForState  []map[string]any  `json:"messages_for_state,omitempty"`
	ToolMap           map[string]string `json:"tool_map,omitempty"`
	ResponsesResponse map[string]any    `json:"responses_response,omitempty"`
	AssistantMessage  map[string]any    `json:"assistant_message,omitempty"`
	Upstream          map[string]any    `json:"upstream,omitempty"`
	Error             map[string]any    `json:"error,omitempty"`

	Notes []string `json:"notes,omitempty"`
}

// Store persists trace records, addressable by the bridge request id or the
// response id the request produced. Implementations own their TTL.
type Store interface {
	GetByRequestID(ctx context.Context, requestID string) (*Record, error)
	GetByResponseID(ctx context.Context, responseID string) (*Record, error)
	Set(ctx context.Context, record *Record) error
	Close() error
}

// Object converts any JSON-serializable value into the generic form the
// sanitizer walks. Returns nil when the value does not encode to an object.
func Object(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Objects converts a slice of JSON-serializable values the same way.
func Objects[T any](values []T) []map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		if obj := Object(v); obj != nil {
			out = append(out, obj)
		}
	}
	return out
}
