package translate

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/haasonsaas/openbridge/internal/ids"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/tools"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// ReasoningDetailsKey carries provider reasoning blocks on reasoning items,
// both outbound and when the client replays them as input.
const ReasoningDetailsKey = "openrouter_reasoning_details"

// OutputItems projects an upstream assistant message into Responses output
// items: reasoning details first, then text content, then one item per tool
// call. Virtualized calls are restored to their external item type.
func OutputItems(msg openrouter.ChatMessage, toolMap *tools.ToolMap) []api.OutputItem {
	var items []api.OutputItem

	if hasJSONValue(msg.ReasoningDetails) {
		items = append(items, api.OutputItem{
			ID:      ids.NewItemID(),
			Type:    api.ItemTypeReasoning,
			Summary: json.RawMessage(`[]`),
			Extra: map[string]json.RawMessage{
				ReasoningDetailsKey: msg.ReasoningDetails,
			},
		})
	}

	if text := msg.ContentText(); text != "" {
		items = append(items, api.OutputItem{
			ID:   ids.NewItemID(),
			Type: api.ItemTypeMessage,
			Role: "assistant",
			Content: []api.ContentPart{
				{Type: api.ContentTypeOutputText, Text: text},
			},
		})
	}

	for _, call := range msg.ToolCalls {
		items = append(items, ToolCallItem(call, toolMap))
	}

	return items
}

// ToolCallItem converts one upstream tool call to its Responses item. A name
// with a ToolMap entry becomes the external *_call item carrying the external
// type as name, the raw arguments, and the parsed argument fields expanded
// into the item body. Every other name stays a plain function_call.
func ToolCallItem(call openrouter.ToolCall, toolMap *tools.ToolMap) api.OutputItem {
	itemType, external := toolMap.ResolveUpstreamName(call.Function.Name)
	item := api.OutputItem{
		ID:        ids.NewItemID(),
		Type:      itemType,
		CallID:    call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}
	if external != "" {
		item.Name = external
		item.Extra = tools.ExpandCallArguments(call.Function.Arguments)
	}
	return item
}

// BuildOptions identifies the turn a completion belongs to. The orchestrator
// fixes the response id and timestamp before calling upstream so the stream
// and non-stream paths agree; zero values fall back to fresh ones.
type BuildOptions struct {
	ResponseID string
	CreatedAt  int64

	// Model is the resolved upstream model of the request.
	Model string

	// Reasoning is the request's reasoning config, echoed back verbatim.
	Reasoning json.RawMessage
}

// BuildResponse assembles the Responses object for one completed upstream
// call.
func BuildResponse(completion *openrouter.ChatCompletion, toolMap *tools.ToolMap, opts BuildOptions) *api.Response {
	id := opts.ResponseID
	if id == "" {
		id = ids.NewResponseID()
	}
	createdAt := opts.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	resp := &api.Response{
		ID:        id,
		Object:    api.ObjectResponse,
		CreatedAt: createdAt,
		Status:    api.StatusCompleted,
		Model:     opts.Model,
		Output:    []api.OutputItem{},
		Usage:     completion.Usage,
		Reasoning: compactRaw(opts.Reasoning),
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	choice := completion.Choices[0]
	if items := OutputItems(choice.Message, toolMap); items != nil {
		resp.Output = items
	}

	switch choice.FinishReason {
	case "length":
		resp.Status = api.StatusIncomplete
		resp.IncompleteDetails = &api.IncompleteDetails{Reason: api.IncompleteMaxOutputTokens}
	case "content_filter":
		resp.Status = api.StatusIncomplete
		resp.IncompleteDetails = &api.IncompleteDetails{Reason: api.IncompleteContentFilter}
	}

	return resp
}

// AssistantMessage reduces the upstream assistant message to the form stored
// in conversation history: text content when present, the tool calls, and
// the reasoning details to replay next turn. Returns nil when the message
// carries nothing a follow-up turn could use.
func AssistantMessage(msg openrouter.ChatMessage) *openrouter.ChatMessage {
	out := openrouter.ChatMessage{Role: "assistant"}
	out.Content = replayableContent(msg.Content)
	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = msg.ToolCalls
	}
	if hasJSONValue(msg.ReasoningDetails) {
		out.ReasoningDetails = msg.ReasoningDetails
	}
	if out.Content == nil && len(out.ToolCalls) == 0 && out.ReasoningDetails == nil {
		return nil
	}
	return &out
}

// replayableContent keeps assistant content in its original shape for the
// stored history, dropping empty values a follow-up turn cannot use.
func replayableContent(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", `""`, "[]", "{}":
		return nil
	}
	return json.RawMessage(trimmed)
}

// EmptyCompletion reports an upstream body with nothing usable: no choices,
// or a first choice whose message has no text, no tool calls, and no
// reasoning. The orchestrator retries these once before giving up.
func EmptyCompletion(completion *openrouter.ChatCompletion) bool {
	if completion == nil || len(completion.Choices) == 0 {
		return true
	}
	msg := completion.Choices[0].Message
	return msg.ContentText() == "" && len(msg.ToolCalls) == 0 && !hasJSONValue(msg.ReasoningDetails)
}
