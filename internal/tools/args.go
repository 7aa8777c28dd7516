package tools

import (
	"encoding/json"

	"github.com/haasonsaas/openbridge/pkg/api"
)

// callItemEnvelopeKeys are the item fields that describe the call itself
// rather than its arguments.
var callItemEnvelopeKeys = map[string]bool{
	"type":    true,
	"id":      true,
	"call_id": true,
	"status":  true,
}

// reservedItemKeys are output-item fields that argument expansion may not
// shadow.
var reservedItemKeys = map[string]bool{
	"id":        true,
	"type":      true,
	"status":    true,
	"role":      true,
	"content":   true,
	"call_id":   true,
	"name":      true,
	"arguments": true,
	"summary":   true,
}

// ArgsFromCallItem projects a replayed `*_call` or `function_call` input
// item into the JSON arguments string sent upstream. A valid JSON
// `arguments` field passes through verbatim; otherwise the item's remaining
// fields are encoded as a JSON object.
func ArgsFromCallItem(item api.InputItem) string {
	if item.Arguments != "" && json.Valid([]byte(item.Arguments)) {
		return item.Arguments
	}

	payload := make(map[string]any)
	if item.Role != "" {
		payload["role"] = item.Role
	}
	if len(item.Content) > 0 {
		payload["content"] = json.RawMessage(item.Content)
	}
	if item.Name != "" {
		payload["name"] = item.Name
	}
	if item.Arguments != "" {
		payload["arguments"] = item.Arguments
	}
	if len(item.Output) > 0 {
		payload["output"] = json.RawMessage(item.Output)
	}
	for key, value := range item.Extra {
		if callItemEnvelopeKeys[key] {
			continue
		}
		payload[key] = json.RawMessage(value)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// ExpandCallArguments parses a tool call's JSON arguments and returns the
// object fields that can be projected onto a `*_call` item without shadowing
// its envelope. Non-object arguments expand to nothing.
func ExpandCallArguments(arguments string) map[string]json.RawMessage {
	if arguments == "" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arguments), &fields); err != nil {
		return nil
	}
	expanded := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		if reservedItemKeys[key] {
			continue
		}
		expanded[key] = value
	}
	if len(expanded) == 0 {
		return nil
	}
	return expanded
}
