// Package openrouter is the Chat Completions client used upstream of the
// bridge. It speaks the OpenAI-compatible dialect: JSON bodies for
// single-shot calls and `data:` SSE frames terminated by [DONE] for streams.
package openrouter

import "encoding/json"

// ChatRequest is the upstream request body. Pointer fields distinguish
// "absent" from a zero value that must be sent verbatim.
type ChatRequest struct {
	Model             string          `json:"model"`
	Messages          []ChatMessage   `json:"messages"`
	Tools             []ChatTool      `json:"tools,omitempty"`
	ToolChoice        any             `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	MaxTokens         *int            `json:"max_tokens,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	Verbosity         string          `json:"verbosity,omitempty"`
	Reasoning         json.RawMessage `json:"reasoning,omitempty"`
	ResponseFormat    *ResponseFormat `json:"response_format,omitempty"`
	Stream            bool            `json:"stream,omitempty"`
}

// Payload converts the request to the map form the transport layer works
// with, so degrade handling can drop arbitrary configured fields.
func (r *ChatRequest) Payload() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ChatMessage is one conversation message, used both in requests and inside
// upstream completion choices. Content stays raw because the dialect allows
// strings, part lists, and provider-specific objects.
type ChatMessage struct {
	Role             string          `json:"role"`
	Content          json.RawMessage `json:"content,omitempty"`
	ToolCalls        []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

// ContentText returns the message content as plain text. Non-string content
// is returned as its compact JSON encoding; absent or null content is "".
func (m *ChatMessage) ContentText() string {
	return ContentToText(m.Content)
}

// ContentToText renders raw message content to text: strings decode, null
// and empty become "", anything else keeps its JSON form.
func ContentToText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// TextContent encodes a plain string as raw message content.
func TextContent(text string) json.RawMessage {
	raw, _ := json.Marshal(text)
	return raw
}

// ToolCall is one completed tool invocation on an assistant message.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the upstream function name and the raw JSON
// arguments string.
type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatTool declares one callable function to the upstream model.
type ChatTool struct {
	Type     string           `json:"type"`
	Function ChatToolFunction `json:"function"`
}

// ChatToolFunction is the function declaration inside a tool entry.
type ChatToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceFunction is the object form of tool_choice selecting one function.
type ToolChoiceFunction struct {
	Type     string             `json:"type"`
	Function ToolChoiceFuncName `json:"function"`
}

// ToolChoiceFuncName names the selected function.
type ToolChoiceFuncName struct {
	Name string `json:"name"`
}

// ResponseFormat selects structured output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is the json_schema variant of ResponseFormat.
type JSONSchema struct {
	Name   string          `json:"name,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ChatCompletion is the upstream non-stream response body.
type ChatCompletion struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []ChatChoice   `json:"choices"`
	Usage   map[string]any `json:"usage,omitempty"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// ChatChunk is one decoded SSE frame of a streaming completion.
type ChatChunk struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []ChunkChoice  `json:"choices,omitempty"`
	Usage   map[string]any `json:"usage,omitempty"`
}

// ChunkChoice is one choice inside a streaming frame.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// ChunkDelta carries the incremental fields of a streaming frame. Content is
// a pointer because an explicit empty string still opens the text output.
type ChunkDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          *string         `json:"content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

// ToolCallDelta is an incremental tool-call fragment. Index identifies the
// call being extended; ID and the function name arrive on the first fragment
// but may be corrected by later ones.
type ToolCallDelta struct {
	Index    *int              `json:"index,omitempty"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function *ToolCallFunction `json:"function,omitempty"`
}
