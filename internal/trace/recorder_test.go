package trace

import (
	"context"
	"strings"
	"testing"
)

func TestRecorderCaptureSanitizesAndStores(t *testing.T) {
	store := NewMemoryStore(10, 0)
	rec := NewRecorder(store, DefaultSanitizeConfig(), nil)
	rec.now = func() int64 { return 1724500000 }
	ctx := context.Background()

	long := strings.Repeat("a", 5000)
	rec.Capture(ctx, &Record{
		RequestID:  "req_1",
		ResponseID: "resp_1",
		Method:     "POST",
		Path:       "/v1/responses",
		ResponsesRequest: map[string]any{
			"model": "openai/gpt-4.1",
			"input": long,
		},
		ChatRequest: map[string]any{
			"messages": []any{
				map[string]any{"role": "user", "content": long},
			},
		},
		Upstream: map[string]any{
			"authorization": "Bearer sk-or-live",
			"request_id":    "or-1",
		},
		ToolMap: map[string]string{"shell": "shell"},
	})

	got, err := store.GetByRequestID(ctx, "req_1")
	if err != nil {
		t.Fatalf("GetByRequestID error: %v", err)
	}
	if got.CreatedAt != 1724500000 || got.UpdatedAt != 1724500000 {
		t.Errorf("timestamps = %d/%d", got.CreatedAt, got.UpdatedAt)
	}

	if got.Upstream["authorization"] != redactedPlaceholder {
		t.Errorf("authorization = %v", got.Upstream["authorization"])
	}
	if got.Upstream["request_id"] != "or-1" {
		t.Errorf("request_id = %v", got.Upstream["request_id"])
	}

	messages := got.ChatRequest["messages"].([]any)
	content := messages[0].(map[string]any)["content"].(string)
	if !strings.Contains(content, "TRUNCATED") {
		t.Errorf("content not truncated: %d chars", len(content))
	}
	if got.ToolMap["shell"] != "shell" {
		t.Errorf("tool map = %v", got.ToolMap)
	}
}

func TestRecorderLookupFallsBackToResponseID(t *testing.T) {
	store := NewMemoryStore(10, 0)
	rec := NewRecorder(store, DefaultSanitizeConfig(), nil)
	ctx := context.Background()

	rec.Capture(ctx, &Record{RequestID: "req_1", ResponseID: "resp_1"})

	byReq, err := rec.Lookup(ctx, "req_1")
	if err != nil || byReq.RequestID != "req_1" {
		t.Fatalf("lookup by request id = %+v, %v", byReq, err)
	}
	byResp, err := rec.Lookup(ctx, "resp_1")
	if err != nil || byResp.RequestID != "req_1" {
		t.Fatalf("lookup by response id = %+v, %v", byResp, err)
	}
	if _, err := rec.Lookup(ctx, "nope"); err == nil {
		t.Error("lookup of unknown id succeeded")
	}
}

func TestRecorderNilIsInert(t *testing.T) {
	var rec *Recorder
	if rec.Enabled() {
		t.Error("nil recorder reports enabled")
	}
	rec.Capture(context.Background(), &Record{RequestID: "req_1"})
	if _, err := rec.Lookup(context.Background(), "req_1"); err == nil {
		t.Error("nil recorder lookup succeeded")
	}
	if err := rec.Close(); err != nil {
		t.Errorf("nil recorder close = %v", err)
	}
}

func TestObjectConversion(t *testing.T) {
	type payload struct {
		Model string `json:"model"`
		N     int    `json:"n"`
	}
	obj := Object(payload{Model: "m", N: 2})
	if obj["model"] != "m" || obj["n"] != float64(2) {
		t.Errorf("object = %v", obj)
	}
	if Object(nil) != nil {
		t.Error("Object(nil) != nil")
	}
	if Object("just a string") != nil {
		t.Error("non-object value should convert to nil")
	}

	list := Objects([]payload{{Model: "a"}, {Model: "b"}})
	if len(list) != 2 || list[1]["model"] != "b" {
		t.Errorf("objects = %v", list)
	}
}
