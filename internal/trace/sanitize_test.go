package trace

import (
	"strings"
	"testing"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	cfg := DefaultSanitizeConfig()
	in := map[string]any{
		"Authorization": "Bearer sk-or-secret",
		"x-api-key":     "key-123",
		"nested": map[string]any{
			"openrouter_api_key": "sk-or-nested",
			"model":              "openai/gpt-4.1",
		},
		"headers": []any{
			map[string]any{"token": "abc"},
		},
	}

	out := Sanitize(in, cfg).(map[string]any)
	if out["Authorization"] != redactedPlaceholder {
		t.Errorf("Authorization = %v", out["Authorization"])
	}
	if out["x-api-key"] != redactedPlaceholder {
		t.Errorf("x-api-key = %v", out["x-api-key"])
	}
	nested := out["nested"].(map[string]any)
	if nested["openrouter_api_key"] != redactedPlaceholder {
		t.Errorf("nested key = %v", nested["openrouter_api_key"])
	}
	if nested["model"] != "openai/gpt-4.1" {
		t.Errorf("model = %v", nested["model"])
	}
	inList := out["headers"].([]any)[0].(map[string]any)
	if inList["token"] != redactedPlaceholder {
		t.Errorf("token in list = %v", inList["token"])
	}

	// The input object is left untouched.
	if in["Authorization"] != "Bearer sk-or-secret" {
		t.Error("sanitize mutated its input")
	}
}

func TestSanitizeRedactionCanBeDisabled(t *testing.T) {
	cfg := DefaultSanitizeConfig()
	cfg.RedactSecrets = false
	out := Sanitize(map[string]any{"token": "abc"}, cfg).(map[string]any)
	if out["token"] != "abc" {
		t.Errorf("token = %v, want abc", out["token"])
	}
}

func TestSanitizeContentTruncate(t *testing.T) {
	cfg := SanitizeConfig{ContentMode: ContentModeTruncate, MaxChars: 10, RedactSecrets: true}

	long := strings.Repeat("x", 25)
	in := map[string]any{
		"content": long,
		"note":    "short",
	}
	out := Sanitize(in, cfg).(map[string]any)

	content := out["content"].(string)
	if !strings.HasPrefix(content, strings.Repeat("x", 10)) || !strings.Contains(content, "TRUNCATED 15 chars") {
		t.Errorf("content = %q", content)
	}
	if out["note"] != "short" {
		t.Errorf("note = %v", out["note"])
	}
}

func TestSanitizeContentDigestMode(t *testing.T) {
	cfg := SanitizeConfig{ContentMode: ContentModeNone, MaxChars: 4000, RedactSecrets: true}

	out := Sanitize(map[string]any{"content": "hello world"}, cfg).(map[string]any)
	digest, ok := out["content"].(map[string]any)
	if !ok {
		t.Fatalf("content = %T, want digest object", out["content"])
	}
	if digest["_redacted"] != true {
		t.Errorf("_redacted = %v", digest["_redacted"])
	}
	if digest["chars"] != 11 {
		t.Errorf("chars = %v, want 11", digest["chars"])
	}
	if hash, _ := digest["sha256_16"].(string); len(hash) != 16 {
		t.Errorf("sha256_16 = %v", digest["sha256_16"])
	}
}

func TestSanitizeFullModeKeepsContent(t *testing.T) {
	cfg := SanitizeConfig{ContentMode: ContentModeFull, MaxChars: 10, RedactSecrets: true}

	long := strings.Repeat("y", 50)
	out := Sanitize(map[string]any{"content": long, "other": long}, cfg).(map[string]any)
	if out["content"] != long {
		t.Errorf("full mode altered content: %v", out["content"])
	}
	// Non-content strings still respect the cap.
	if other := out["other"].(string); !strings.Contains(other, "TRUNCATED") {
		t.Errorf("other = %q, want truncated", other)
	}
}

func TestSanitizeNonContentCapAppliesEverywhere(t *testing.T) {
	cfg := DefaultSanitizeConfig()
	cfg.MaxChars = 8

	out := Sanitize(map[string]any{"trace": strings.Repeat("z", 20)}, cfg).(map[string]any)
	got := out["trace"].(string)
	if !strings.HasPrefix(got, "zzzzzzzz...") || !strings.Contains(got, "TRUNCATED 12 chars") {
		t.Errorf("trace = %q", got)
	}
}

func TestSanitizeScalarsAndNil(t *testing.T) {
	cfg := DefaultSanitizeConfig()
	in := map[string]any{
		"count":  float64(3),
		"ok":     true,
		"absent": nil,
	}
	out := Sanitize(in, cfg).(map[string]any)
	if out["count"] != float64(3) || out["ok"] != true || out["absent"] != nil {
		t.Errorf("scalars altered: %v", out)
	}
}
