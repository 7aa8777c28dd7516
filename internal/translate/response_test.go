package translate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/tools"
	"github.com/haasonsaas/openbridge/pkg/api"
)

func applyPatchToolMap(t *testing.T) *tools.ToolMap {
	t.Helper()
	_, toolMap, err := tools.NewRegistry().VirtualizeTools([]api.Tool{{Type: "apply_patch"}})
	if err != nil {
		t.Fatalf("VirtualizeTools error: %v", err)
	}
	return toolMap
}

func TestOutputItemsOrder(t *testing.T) {
	msg := openrouter.ChatMessage{
		Role:             "assistant",
		Content:          openrouter.TextContent("Here you go."),
		ReasoningDetails: json.RawMessage(`[{"type":"reasoning.text","text":"hmm"}]`),
		ToolCalls: []openrouter.ToolCall{
			{ID: "call_1", Type: "function", Function: openrouter.ToolCallFunction{Name: "apply_patch", Arguments: `{"input":"*** Begin Patch"}`}},
			{ID: "call_2", Type: "function", Function: openrouter.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"SF"}`}},
		},
	}

	items := OutputItems(msg, applyPatchToolMap(t))
	if len(items) != 4 {
		t.Fatalf("len(items) = %d, want 4: %+v", len(items), items)
	}

	if items[0].Type != api.ItemTypeReasoning {
		t.Errorf("items[0].Type = %q, want reasoning first", items[0].Type)
	}
	if string(items[0].Extra["openrouter_reasoning_details"]) != `[{"type":"reasoning.text","text":"hmm"}]` {
		t.Errorf("reasoning details = %s", items[0].Extra["openrouter_reasoning_details"])
	}
	if string(items[0].Summary) != "[]" {
		t.Errorf("reasoning summary = %s, want []", items[0].Summary)
	}

	if items[1].Type != api.ItemTypeMessage || items[1].Role != "assistant" {
		t.Errorf("items[1] = %+v, want assistant message", items[1])
	}
	if len(items[1].Content) != 1 || items[1].Content[0].Type != api.ContentTypeOutputText || items[1].Content[0].Text != "Here you go." {
		t.Errorf("message content = %+v", items[1].Content)
	}

	if items[2].Type != "apply_patch_call" || items[2].CallID != "call_1" {
		t.Errorf("items[2] = %+v, want apply_patch_call", items[2])
	}
	if items[3].Type != api.ItemTypeFunctionCall || items[3].Name != "get_weather" || items[3].CallID != "call_2" {
		t.Errorf("items[3] = %+v, want function_call", items[3])
	}

	for i, item := range items {
		if !strings.HasPrefix(item.ID, "item_") {
			t.Errorf("items[%d].ID = %q, want item_ prefix", i, item.ID)
		}
	}
}

func TestToolCallItemVirtualized(t *testing.T) {
	call := openrouter.ToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: openrouter.ToolCallFunction{Name: "apply_patch", Arguments: `{"input":"*** Begin Patch"}`},
	}

	item := ToolCallItem(call, applyPatchToolMap(t))
	if item.Type != "apply_patch_call" {
		t.Errorf("Type = %q", item.Type)
	}
	if item.Name != "apply_patch" {
		t.Errorf("Name = %q, want external type", item.Name)
	}
	if item.Arguments != `{"input":"*** Begin Patch"}` {
		t.Errorf("Arguments = %q, want verbatim", item.Arguments)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	if decoded["input"] != "*** Begin Patch" {
		t.Errorf("expanded input = %v, want argument field on the item", decoded["input"])
	}
	if decoded["call_id"] != "call_1" {
		t.Errorf("call_id = %v", decoded["call_id"])
	}
}

func TestToolCallItemPlainFunction(t *testing.T) {
	call := openrouter.ToolCall{
		ID:       "call_7",
		Function: openrouter.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"SF"}`},
	}

	item := ToolCallItem(call, applyPatchToolMap(t))
	if item.Type != api.ItemTypeFunctionCall || item.Name != "get_weather" {
		t.Errorf("item = %+v", item)
	}
	if len(item.Extra) != 0 {
		t.Errorf("plain function call expanded fields: %+v", item.Extra)
	}
}

func TestToolCallItemNilToolMap(t *testing.T) {
	call := openrouter.ToolCall{ID: "call_1", Function: openrouter.ToolCallFunction{Name: "anything", Arguments: "{}"}}
	item := ToolCallItem(call, nil)
	if item.Type != api.ItemTypeFunctionCall {
		t.Errorf("Type = %q", item.Type)
	}
}

func TestBuildResponseCompleted(t *testing.T) {
	completion := &openrouter.ChatCompletion{
		Model: "openai/gpt-4.1",
		Choices: []openrouter.ChatChoice{
			{Message: openrouter.ChatMessage{Role: "assistant", Content: openrouter.TextContent("Hi")}, FinishReason: "stop"},
		},
		Usage: map[string]any{"prompt_tokens": float64(3), "completion_tokens": float64(1)},
	}

	resp := BuildResponse(completion, nil, BuildOptions{Model: "openai/gpt-4.1"})
	if !strings.HasPrefix(resp.ID, "resp_") {
		t.Errorf("ID = %q", resp.ID)
	}
	if resp.Object != api.ObjectResponse || resp.Status != api.StatusCompleted {
		t.Errorf("Object = %q Status = %q", resp.Object, resp.Status)
	}
	if resp.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}
	if resp.Model != "openai/gpt-4.1" {
		t.Errorf("Model = %q", resp.Model)
	}
	if len(resp.Output) != 1 || resp.Output[0].Type != api.ItemTypeMessage {
		t.Fatalf("Output = %+v", resp.Output)
	}
	if resp.Output[0].Content[0].Text != "Hi" {
		t.Errorf("text = %q", resp.Output[0].Content[0].Text)
	}
	if resp.Usage["prompt_tokens"] != float64(3) {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.IncompleteDetails != nil {
		t.Errorf("IncompleteDetails = %+v", resp.IncompleteDetails)
	}
}

func TestBuildResponseFinishReasons(t *testing.T) {
	tests := []struct {
		name       string
		reason     string
		wantStatus string
		wantDetail string
	}{
		{"stop completes", "stop", api.StatusCompleted, ""},
		{"length truncates", "length", api.StatusIncomplete, api.IncompleteMaxOutputTokens},
		{"content filter truncates", "content_filter", api.StatusIncomplete, api.IncompleteContentFilter},
		{"tool_calls completes", "tool_calls", api.StatusCompleted, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion := &openrouter.ChatCompletion{
				Choices: []openrouter.ChatChoice{{
					Message:      openrouter.ChatMessage{Role: "assistant", Content: openrouter.TextContent("x")},
					FinishReason: tt.reason,
				}},
			}
			resp := BuildResponse(completion, nil, BuildOptions{Model: "m"})
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if tt.wantDetail == "" && resp.IncompleteDetails != nil {
				t.Errorf("IncompleteDetails = %+v, want nil", resp.IncompleteDetails)
			}
			if tt.wantDetail != "" && (resp.IncompleteDetails == nil || resp.IncompleteDetails.Reason != tt.wantDetail) {
				t.Errorf("IncompleteDetails = %+v, want reason %q", resp.IncompleteDetails, tt.wantDetail)
			}
		})
	}
}

func TestBuildResponseUsesProvidedIdentity(t *testing.T) {
	completion := &openrouter.ChatCompletion{
		Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{Content: openrouter.TextContent("ok")}}},
	}
	resp := BuildResponse(completion, nil, BuildOptions{ResponseID: "resp_fixed", CreatedAt: 1724500000, Model: "m"})
	if resp.ID != "resp_fixed" || resp.CreatedAt != 1724500000 {
		t.Errorf("identity = %q/%d, want the provided one", resp.ID, resp.CreatedAt)
	}
}

func TestBuildResponseEmptyChoices(t *testing.T) {
	resp := BuildResponse(&openrouter.ChatCompletion{}, nil, BuildOptions{Model: "m"})
	if resp.Output == nil || len(resp.Output) != 0 {
		t.Errorf("Output = %#v, want empty non-nil slice", resp.Output)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"output":[]`) {
		t.Errorf("serialized response = %s, want empty output array", raw)
	}
}

func TestBuildResponseEchoesReasoningConfig(t *testing.T) {
	completion := &openrouter.ChatCompletion{
		Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{Content: openrouter.TextContent("ok")}}},
	}
	resp := BuildResponse(completion, nil, BuildOptions{Model: "m", Reasoning: json.RawMessage(`{"effort":"low"}`)})
	if string(resp.Reasoning) != `{"effort":"low"}` {
		t.Errorf("Reasoning = %s", resp.Reasoning)
	}
}

func TestAssistantMessage(t *testing.T) {
	t.Run("keeps text tools and reasoning", func(t *testing.T) {
		msg := openrouter.ChatMessage{
			Role:             "assistant",
			Content:          openrouter.TextContent("done"),
			ToolCalls:        []openrouter.ToolCall{{ID: "call_1", Function: openrouter.ToolCallFunction{Name: "a", Arguments: "{}"}}},
			ReasoningDetails: json.RawMessage(`[{"type":"reasoning.text","text":"t"}]`),
		}
		got := AssistantMessage(msg)
		if got == nil {
			t.Fatal("AssistantMessage = nil")
		}
		if got.Role != "assistant" || got.ContentText() != "done" {
			t.Errorf("got = %+v", got)
		}
		if len(got.ToolCalls) != 1 || len(got.ReasoningDetails) == 0 {
			t.Errorf("got = %+v", got)
		}
	})

	t.Run("content kept in original shape", func(t *testing.T) {
		msg := openrouter.ChatMessage{Role: "assistant", Content: json.RawMessage(`[{"type":"text","text":"hi"}]`)}
		got := AssistantMessage(msg)
		if got == nil || string(got.Content) != `[{"type":"text","text":"hi"}]` {
			t.Errorf("got = %+v", got)
		}
	})

	t.Run("empty message is nil", func(t *testing.T) {
		if got := AssistantMessage(openrouter.ChatMessage{Role: "assistant", Content: openrouter.TextContent("")}); got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})

	t.Run("reasoning only is kept", func(t *testing.T) {
		msg := openrouter.ChatMessage{Role: "assistant", ReasoningDetails: json.RawMessage(`[{"a":1}]`)}
		if got := AssistantMessage(msg); got == nil {
			t.Error("got nil, want reasoning-only message")
		}
	})
}

func TestEmptyCompletion(t *testing.T) {
	tests := []struct {
		name       string
		completion *openrouter.ChatCompletion
		want       bool
	}{
		{"nil", nil, true},
		{"no choices", &openrouter.ChatCompletion{}, true},
		{
			"empty message",
			&openrouter.ChatCompletion{Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{Role: "assistant"}}}},
			true,
		},
		{
			"text",
			&openrouter.ChatCompletion{Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{Content: openrouter.TextContent("hi")}}}},
			false,
		},
		{
			"tool call only",
			&openrouter.ChatCompletion{Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{
				ToolCalls: []openrouter.ToolCall{{ID: "call_1"}},
			}}}},
			false,
		},
		{
			"reasoning only",
			&openrouter.ChatCompletion{Choices: []openrouter.ChatChoice{{Message: openrouter.ChatMessage{
				ReasoningDetails: json.RawMessage(`[{"a":1}]`),
			}}}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmptyCompletion(tt.completion); got != tt.want {
				t.Errorf("EmptyCompletion = %v, want %v", got, tt.want)
			}
		})
	}
}
