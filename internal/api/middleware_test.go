package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestClientAuth(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, func(opts *Options) {
		opts.ClientAPIKey = "secret"
	})

	tests := []struct {
		name        string
		header      string
		value       string
		wantStatus  int
		wantMessage string
	}{
		{"no credentials", "", "", http.StatusUnauthorized, "Missing client API key"},
		{"bearer", "Authorization", "Bearer secret", http.StatusOK, ""},
		{"bearer lowercase", "Authorization", "bearer secret", http.StatusOK, ""},
		{"raw token", "Authorization", "secret", http.StatusOK, ""},
		{"x-api-key", "X-Api-Key", "secret", http.StatusOK, ""},
		{"wrong key", "Authorization", "Bearer wrong", http.StatusUnauthorized, "Invalid client API key"},
		{"wrong raw key", "X-Api-Key", "wrong", http.StatusUnauthorized, "Invalid client API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, bridge.URL+"/v1/responses",
				strings.NewReader(`{"model":"gpt-4.1","input":"hi"}`))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantMessage != "" {
				info := errorInfo(t, decodeBody(t, resp))
				if info["message"] != tt.wantMessage {
					t.Errorf("message = %v, want %q", info["message"], tt.wantMessage)
				}
			} else {
				resp.Body.Close()
			}
		})
	}

	// Operational endpoints stay open.
	health := doRequest(t, http.MethodGet, bridge.URL+"/healthz")
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("healthz with auth enabled = %d, want 200", health.StatusCode)
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := postJSON(t, bridge.URL+"/v1/responses", `{"model":"gpt-4.1","input":"hi"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status without credentials = %d, want 200 when no key configured", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	upstream := newUpstreamStub(t, func(call int, w http.ResponseWriter, payload map[string]any) {
		writeCompletion(w, "Hi")
	})
	bridge := newBridge(t, upstream, nil)

	resp := doRequest(t, http.MethodGet, bridge.URL+"/healthz")
	resp.Body.Close()
	if id := resp.Header.Get("X-Request-Id"); !strings.HasPrefix(id, "req_") {
		t.Errorf("generated X-Request-Id = %q, want req_ prefix", id)
	}

	req, err := http.NewRequest(http.MethodGet, bridge.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Request-Id", "req_custom")
	echoed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	echoed.Body.Close()
	if id := echoed.Header.Get("X-Request-Id"); id != "req_custom" {
		t.Errorf("echoed X-Request-Id = %q, want req_custom", id)
	}
}
