package tools

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/openbridge/pkg/api"
)

func TestArgsFromCallItem(t *testing.T) {
	t.Run("valid arguments pass through verbatim", func(t *testing.T) {
		item := api.InputItem{
			Type:      "function_call",
			CallID:    "call_1",
			Name:      "search",
			Arguments: `{"q": "go sse"}`,
		}
		if got := ArgsFromCallItem(item); got != `{"q": "go sse"}` {
			t.Errorf("args = %q, want verbatim arguments", got)
		}
	})

	t.Run("projected fields become arguments", func(t *testing.T) {
		item := api.InputItem{
			Type:   "shell_call",
			CallID: "call_2",
			Extra: map[string]json.RawMessage{
				"command":    json.RawMessage(`"ls -la"`),
				"timeout_ms": json.RawMessage(`500`),
			},
		}
		got := ArgsFromCallItem(item)

		var decoded map[string]any
		if err := json.Unmarshal([]byte(got), &decoded); err != nil {
			t.Fatalf("args not valid JSON: %v", err)
		}
		if decoded["command"] != "ls -la" {
			t.Errorf("command = %v", decoded["command"])
		}
		if decoded["timeout_ms"] != float64(500) {
			t.Errorf("timeout_ms = %v", decoded["timeout_ms"])
		}
		if _, present := decoded["call_id"]; present {
			t.Error("call_id must not leak into arguments")
		}
	})

	t.Run("invalid arguments string is wrapped", func(t *testing.T) {
		item := api.InputItem{
			Type:      "function_call",
			CallID:    "call_3",
			Name:      "search",
			Arguments: "not json",
		}
		got := ArgsFromCallItem(item)

		var decoded map[string]any
		if err := json.Unmarshal([]byte(got), &decoded); err != nil {
			t.Fatalf("args not valid JSON: %v", err)
		}
		if decoded["arguments"] != "not json" {
			t.Errorf("arguments = %v, want raw string preserved", decoded["arguments"])
		}
		if decoded["name"] != "search" {
			t.Errorf("name = %v", decoded["name"])
		}
	})

	t.Run("empty item yields empty object", func(t *testing.T) {
		if got := ArgsFromCallItem(api.InputItem{Type: "mystery_call"}); got != "{}" {
			t.Errorf("args = %q, want {}", got)
		}
	})
}

func TestExpandCallArguments(t *testing.T) {
	t.Run("object fields", func(t *testing.T) {
		expanded := ExpandCallArguments(`{"input":"*** Begin Patch","type":"sneaky","call_id":"x"}`)
		if string(expanded["input"]) != `"*** Begin Patch"` {
			t.Errorf("input = %s", expanded["input"])
		}
		if _, present := expanded["type"]; present {
			t.Error("reserved key type must be skipped")
		}
		if _, present := expanded["call_id"]; present {
			t.Error("reserved key call_id must be skipped")
		}
	})

	t.Run("non-object arguments", func(t *testing.T) {
		if expanded := ExpandCallArguments(`"just a string"`); expanded != nil {
			t.Errorf("expanded = %v, want nil", expanded)
		}
		if expanded := ExpandCallArguments(""); expanded != nil {
			t.Errorf("expanded = %v, want nil", expanded)
		}
		if expanded := ExpandCallArguments("{broken"); expanded != nil {
			t.Errorf("expanded = %v, want nil", expanded)
		}
	})
}

func TestCallItemTypePredicates(t *testing.T) {
	tests := []struct {
		itemType   string
		isCall     bool
		isOutput   bool
		external   string
		hasCallFix bool
	}{
		{"function_call", true, false, "function", true},
		{"function_call_output", false, true, "function", true},
		{"shell_call", true, false, "shell", true},
		{"apply_patch_call_output", false, true, "apply_patch", true},
		{"message", false, false, "", false},
		{"reasoning", false, false, "", false},
		{"_call", false, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.itemType, func(t *testing.T) {
			if got := IsCallItemType(tt.itemType); got != tt.isCall {
				t.Errorf("IsCallItemType = %v, want %v", got, tt.isCall)
			}
			if got := IsCallOutputItemType(tt.itemType); got != tt.isOutput {
				t.Errorf("IsCallOutputItemType = %v, want %v", got, tt.isOutput)
			}
			ext, ok := ExternalTypeFromItemType(tt.itemType)
			if ok != tt.hasCallFix || ext != tt.external {
				t.Errorf("ExternalTypeFromItemType = %q/%v, want %q/%v", ext, ok, tt.external, tt.hasCallFix)
			}
		})
	}
}
