package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/state"
)

func TestCreateResponseText(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"Hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	body := decodeBody(t, resp)
	if body["object"] != "response" {
		t.Errorf("object = %v, want response", body["object"])
	}
	if body["status"] != "completed" {
		t.Errorf("status = %v, want completed", body["status"])
	}
	id, _ := body["id"].(string)
	if !strings.HasPrefix(id, "resp_") {
		t.Errorf("id = %q, want resp_ prefix", id)
	}

	output, _ := body["output"].([]any)
	if len(output) != 1 {
		t.Fatalf("output length = %d, want 1", len(output))
	}
	item := output[0].(map[string]any)
	if item["type"] != "message" {
		t.Errorf("item type = %v, want message", item["type"])
	}
	content := item["content"].([]any)[0].(map[string]any)
	if content["type"] != "output_text" || content["text"] != "Hi" {
		t.Errorf("content = %v, want output_text %q", content, "Hi")
	}

	payload := upstream.payload(0)
	if payload["model"] != "openai/gpt-4.1" {
		t.Errorf("upstream model = %v, want openai/gpt-4.1", payload["model"])
	}
	messages := payload["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("upstream messages = %d, want 1", len(messages))
	}
	first := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "Hello" {
		t.Errorf("upstream message = %v", first)
	}
	if payload["max_tokens"] != float64(64) {
		t.Errorf("upstream max_tokens = %v, want 64", payload["max_tokens"])
	}
}

func TestCreateResponseVirtualizedToolCall(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"gen-1","choices":[{"index":0,"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"apply_patch","arguments":"{\"input\":\"hunk\"}"}}]},"finish_reason":"tool_calls"}]}`)
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"patch it","tools":[{"type":"apply_patch"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	output := body["output"].([]any)
	if len(output) != 1 {
		t.Fatalf("output length = %d, want 1", len(output))
	}
	item := output[0].(map[string]any)
	if item["type"] != "apply_patch_call" {
		t.Errorf("item type = %v, want apply_patch_call", item["type"])
	}
	if item["call_id"] != "call_1" {
		t.Errorf("call_id = %v, want call_1", item["call_id"])
	}
	if item["input"] != "hunk" {
		t.Errorf("expanded input = %v, want hunk", item["input"])
	}

	// The declared builtin reaches the upstream as a function tool.
	tools := upstream.payload(0)["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "apply_patch" {
		t.Errorf("upstream tool name = %v, want apply_patch", fn["name"])
	}
}

func TestCreateResponsePreviousResponseID(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	first := decodeBody(t, postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"Hello"}`))
	id := first["id"].(string)

	resp := postJSON(t, bridge.URL+"/v1/responses",
		fmt.Sprintf(`{"model":"gpt-4.1","input":"And you?","previous_response_id":%q}`, id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	messages := upstream.payload(1)["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("second turn messages = %d, want 3", len(messages))
	}
	wantRoles := []string{"user", "assistant", "user"}
	for i, want := range wantRoles {
		msg := messages[i].(map[string]any)
		if msg["role"] != want {
			t.Errorf("message[%d] role = %v, want %s", i, msg["role"], want)
		}
	}
	if messages[1].(map[string]any)["content"] != "Hi" {
		t.Errorf("replayed assistant content = %v, want Hi", messages[1].(map[string]any)["content"])
	}
}

func TestCreateResponseUnknownPreviousID(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"hi","previous_response_id":"resp_missing"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	info := errorInfo(t, decodeBody(t, resp))
	if info["message"] != "previous_response_id not found" {
		t.Errorf("message = %v", info["message"])
	}
	if upstream.calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", upstream.calls())
	}
}

func TestCreateResponseStateDisabled(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, func(opts *Options) {
		opts.Store = state.NewDisabledStore()
	})

	resp := postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"hi","previous_response_id":"resp_1"}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
	info := errorInfo(t, decodeBody(t, resp))
	if info["message"] != "State store is disabled" {
		t.Errorf("message = %v", info["message"])
	}

	// Requests without history still work; the turn is just not persisted.
	plain := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	if plain.StatusCode != http.StatusOK {
		t.Fatalf("plain request status = %d, want 200", plain.StatusCode)
	}
	plain.Body.Close()
}

func TestCreateResponseStoreOptOut(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	body := decodeBody(t, postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"hi","store":false}`))
	id := body["id"].(string)

	get := doRequest(t, http.MethodGet, bridge.URL+"/v1/responses/"+id)
	get.Body.Close()
	if get.StatusCode != http.StatusNotFound {
		t.Errorf("GET after store:false = %d, want 404", get.StatusCode)
	}
}

func TestCreateResponseDegradeRetry(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		if call == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"Unknown parameter: verbosity","type":"invalid_request_error"}}`)
			return
		}
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"hi","verbosity":"high"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 after degrade retry", resp.StatusCode)
	}
	resp.Body.Close()

	if upstream.calls() != 2 {
		t.Fatalf("upstream calls = %d, want 2", upstream.calls())
	}
	if upstream.payload(0)["verbosity"] != "high" {
		t.Errorf("first payload verbosity = %v, want high", upstream.payload(0)["verbosity"])
	}
	if _, present := upstream.payload(1)["verbosity"]; present {
		t.Errorf("degraded payload still carries verbosity")
	}
}

func TestCreateResponseEmptyCompletionRetry(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		if call == 1 {
			writeCompletion(w, "")
			return
		}
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	body := decodeBody(t, postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`))
	if upstream.calls() != 2 {
		t.Fatalf("upstream calls = %d, want 2", upstream.calls())
	}
	output := body["output"].([]any)
	if len(output) != 1 {
		t.Fatalf("output length = %d, want 1 after retry", len(output))
	}
}

func TestCreateResponseEmptyCompletionTwice(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	info := errorInfo(t, decodeBody(t, resp))
	if info["message"] != "Upstream returned empty completion" {
		t.Errorf("message = %v", info["message"])
	}
	if info["type"] != "bad_gateway" {
		t.Errorf("type = %v, want bad_gateway", info["type"])
	}
	if upstream.calls() != 2 {
		t.Errorf("upstream calls = %d, want 2", upstream.calls())
	}
}

func TestCreateResponseEmptyWithZeroMaxTokens(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "")
	})
	bridge := newBridge(t, upstream, nil)

	// Zero max_output_tokens means the empty body is expected: no retry,
	// no error, empty output served as-is.
	resp := postJSON(t, bridge.URL+"/v1/responses",
		`{"model":"gpt-4.1","input":"hi","max_output_tokens":0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if output := body["output"].([]any); len(output) != 0 {
		t.Errorf("output length = %d, want 0", len(output))
	}
	if upstream.calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", upstream.calls())
	}
}

func TestCreateResponseUpstreamErrorPassthrough(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid API key","type":"authentication_error","code":"invalid_api_key"}}`)
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want upstream 401 passed through", resp.StatusCode)
	}
	info := errorInfo(t, decodeBody(t, resp))
	if info["message"] != "Invalid API key" {
		t.Errorf("message = %v", info["message"])
	}
	if info["type"] != "authentication_error" {
		t.Errorf("type = %v, want authentication_error", info["type"])
	}
	if info["code"] != "invalid_api_key" {
		t.Errorf("code = %v, want invalid_api_key", info["code"])
	}
	if upstream.calls() != 1 {
		t.Errorf("upstream calls = %d, want 1 for a non-retryable status", upstream.calls())
	}
}

func TestCreateResponseRetryOn500(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		if call == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 after transient 500", resp.StatusCode)
	}
	resp.Body.Close()
	if upstream.calls() != 2 {
		t.Errorf("upstream calls = %d, want 2", upstream.calls())
	}
}

func TestCreateResponseUpstreamTimeout(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		time.Sleep(200 * time.Millisecond)
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, func(opts *Options) {
		opts.Upstream = openrouter.New(openrouter.Options{
			BaseURL: upstream.server.URL,
			APIKey:  "sk-or-test",
			Timeout: 20 * time.Millisecond,
			Policy:  testPolicy,
			Stop:    testStop,
		})
	})

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", resp.StatusCode)
	}
	info := errorInfo(t, decodeBody(t, resp))
	if info["type"] != "upstream_error" {
		t.Errorf("type = %v, want upstream_error", info["type"])
	}
}

func TestCreateResponseInvalidBody(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"model":`},
		{"bad input type", `{"model":"gpt-4.1","input":42}`},
		{"missing model", `{"input":"hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, bridge.URL+"/v1/responses", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			info := errorInfo(t, decodeBody(t, resp))
			if info["type"] != "invalid_request_error" {
				t.Errorf("type = %v, want invalid_request_error", info["type"])
			}
		})
	}
	if upstream.calls() != 0 {
		t.Errorf("upstream calls = %d, want 0", upstream.calls())
	}
}

func TestCreateResponseModelAlias(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, func(opts *Options) {
		opts.ModelMap = map[string]string{"fast": "anthropic/claude-sonnet"}
	})

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"fast","input":"hi"}`)
	resp.Body.Close()
	if got := upstream.payload(0)["model"]; got != "anthropic/claude-sonnet" {
		t.Errorf("upstream model = %v, want alias target", got)
	}
}
