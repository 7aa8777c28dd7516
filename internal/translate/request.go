// Package translate converts Responses requests into upstream Chat
// Completions payloads and upstream completions back into Responses objects.
//
// The request side reduces the ordered input items to chat messages, infers
// tool definitions from tool-loop items the client replayed without
// declarations, and virtualizes non-function tools through the registry. The
// response side reverses the projection using the per-turn ToolMap.
package translate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/tools"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// Options configures one translation pass.
type Options struct {
	// Registry resolves built-in tool schemas and virtualized names.
	Registry *tools.Registry

	// ModelMap rewrites client model aliases to upstream identifiers.
	ModelMap map[string]string

	// MaxTokensBuffer is added to max_output_tokens so hidden reasoning
	// tokens counted by the upstream do not starve the visible output.
	MaxTokensBuffer int
}

// Result is the per-turn translation artifact: the upstream request plus
// everything the response translator and the store need afterwards.
type Result struct {
	// Chat is the upstream request body.
	Chat *openrouter.ChatRequest

	// ToolMap links virtualized upstream function names to external tool
	// types for this turn.
	ToolMap *tools.ToolMap

	// MessagesForState is the rehydrated history plus the reduced input,
	// without the injected instructions. The caller appends the turn's
	// assistant message before persisting.
	MessagesForState []openrouter.ChatMessage

	// Inferred reports that tool definitions were inferred from tool-loop
	// input items the client did not declare.
	Inferred bool

	// Instructions is the system text injected at the head of messages,
	// empty when the request carried none.
	Instructions string
}

const inferredToolDescription = "Inferred tool definition (client did not provide schema)."

var inferredToolParameters = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":true}`)

var errReasoningNotObject = errors.New("reasoning must be an object")

// Request translates one Responses request. history is the reduced message
// list rehydrated from previous_response_id, or nil for a fresh conversation.
func Request(req *api.Request, history []openrouter.ChatMessage, opts Options) (*Result, error) {
	reg := opts.Registry
	if reg == nil {
		reg = tools.NewRegistry()
	}

	if err := validateReasoning(req.Reasoning); err != nil {
		return nil, err
	}

	model := resolveModel(req.Model, opts.ModelMap)

	inputMessages := reduceInput(req.Input, reg)

	messages := make([]openrouter.ChatMessage, 0, len(history)+len(inputMessages)+1)
	if req.Instructions != "" {
		messages = append(messages, openrouter.ChatMessage{
			Role:    "system",
			Content: openrouter.TextContent(req.Instructions),
		})
	}
	messages = append(messages, history...)
	messages = append(messages, inputMessages...)

	inferred := inferTools(req.Input)
	merged := mergeTools(req.Tools, inferred)

	// A tool loop replayed without declarations must not trigger another
	// call to the same undeclared tool.
	forceNone := len(req.Tools) == 0 && len(inferred) > 0 && req.ToolChoice == nil

	filtered := merged
	var upstreamChoice any
	switch choice := req.ToolChoice; {
	case choice == nil:
		if forceNone {
			upstreamChoice = "none"
		}
	case choice.Allowed != nil:
		filtered = filterAllowed(merged, choice.Allowed.Tools)
		if choice.Allowed.Mode != "" {
			upstreamChoice = choice.Allowed.Mode
		}
	case choice.Function != nil:
		upstreamChoice = openrouter.ToolChoiceFunction{
			Type:     "function",
			Function: openrouter.ToolChoiceFuncName{Name: choice.Function.Name},
		}
	default:
		if choice.Mode != "" {
			upstreamChoice = choice.Mode
		}
	}

	chatTools, toolMap, err := reg.VirtualizeTools(filtered)
	if err != nil {
		return nil, err
	}
	if len(chatTools) == 0 {
		chatTools = nil
	}

	format, err := responseFormat(req.Text)
	if err != nil {
		return nil, err
	}

	chat := &openrouter.ChatRequest{
		Model:             model,
		Messages:          messages,
		Tools:             chatTools,
		ToolChoice:        upstreamChoice,
		ParallelToolCalls: req.ParallelToolCalls,
		MaxTokens:         upstreamMaxTokens(req.MaxOutputTokens, opts.MaxTokensBuffer),
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		Verbosity:         req.Verbosity,
		Reasoning:         compactRaw(req.Reasoning),
		ResponseFormat:    format,
		Stream:            req.Stream,
	}

	state := make([]openrouter.ChatMessage, 0, len(history)+len(inputMessages))
	state = append(state, history...)
	state = append(state, inputMessages...)

	return &Result{
		Chat:             chat,
		ToolMap:          toolMap,
		MessagesForState: state,
		Inferred:         len(inferred) > 0,
		Instructions:     req.Instructions,
	}, nil
}

// resolveModel applies the alias map and falls back to the openai/ namespace
// for bare names. Names already carrying a provider prefix pass through.
func resolveModel(model string, aliases map[string]string) string {
	if mapped, ok := aliases[model]; ok {
		return mapped
	}
	if strings.Contains(model, "/") {
		return model
	}
	return "openai/" + model
}

// reduceInput lowers the Responses input to chat messages. Message items pass
// through; tool-loop items become assistant tool_calls and tool replies;
// reasoning items are held and attached to the next assistant message.
func reduceInput(input api.InputPayload, reg *tools.Registry) []openrouter.ChatMessage {
	if input.IsText() {
		return []openrouter.ChatMessage{{Role: "user", Content: openrouter.TextContent(input.Text)}}
	}

	var messages []openrouter.ChatMessage
	var pending []json.RawMessage

	for _, item := range input.Items {
		if item.Role != "" && hasJSONValue(item.Content) {
			msg := openrouter.ChatMessage{Role: item.Role, Content: normalizeContent(item.Content)}
			if item.Role == "assistant" && len(pending) > 0 {
				msg.ReasoningDetails = encodeDetails(pending)
				pending = nil
			}
			messages = append(messages, msg)
			continue
		}

		switch {
		case item.Type == api.ItemTypeReasoning:
			pending = append(pending, reasoningDetails(item)...)

		case item.Type == api.ItemTypeFunctionCall:
			args := item.Arguments
			if args == "" {
				args = "{}"
			}
			appendToolCall(&messages, openrouter.ToolCall{
				ID:       item.CallID,
				Type:     "function",
				Function: openrouter.ToolCallFunction{Name: item.Name, Arguments: args},
			})
			attachPending(messages, &pending)

		case item.Type == api.ItemTypeFunctionCallOutput:
			messages = append(messages, toolResultMessage(item))

		case tools.IsCallOutputItemType(item.Type):
			messages = append(messages, toolResultMessage(item))

		case tools.IsCallItemType(item.Type):
			ext, _ := tools.ExternalTypeFromItemType(item.Type)
			appendToolCall(&messages, openrouter.ToolCall{
				ID:   item.CallID,
				Type: "function",
				Function: openrouter.ToolCallFunction{
					Name:      reg.FunctionNameForExternalType(ext),
					Arguments: tools.ArgsFromCallItem(item),
				},
			})
			attachPending(messages, &pending)
		}
		// Anything else carries nothing the chat dialect can express.
	}

	return messages
}

// appendToolCall extends the trailing assistant tool-call message or starts a
// new one. An assistant text message never absorbs calls.
func appendToolCall(messages *[]openrouter.ChatMessage, call openrouter.ToolCall) {
	if n := len(*messages); n > 0 {
		last := &(*messages)[n-1]
		if last.Role == "assistant" && len(last.ToolCalls) > 0 {
			last.ToolCalls = append(last.ToolCalls, call)
			return
		}
	}
	*messages = append(*messages, openrouter.ChatMessage{
		Role:      "assistant",
		ToolCalls: []openrouter.ToolCall{call},
	})
}

// attachPending moves held reasoning details onto the trailing assistant
// message. Details with no assistant to land on are dropped at end of input.
func attachPending(messages []openrouter.ChatMessage, pending *[]json.RawMessage) {
	if len(*pending) == 0 || len(messages) == 0 {
		return
	}
	last := &messages[len(messages)-1]
	if last.Role != "assistant" {
		return
	}
	last.ReasoningDetails = encodeDetails(*pending)
	*pending = nil
}

func toolResultMessage(item api.InputItem) openrouter.ChatMessage {
	return openrouter.ChatMessage{
		Role:       "tool",
		ToolCallID: item.CallID,
		Content:    openrouter.TextContent(stringifyOutput(item.Output)),
	}
}

// reasoningDetails extracts the replayable detail objects from a reasoning
// input item. Non-object entries are ignored.
func reasoningDetails(item api.InputItem) []json.RawMessage {
	raw, ok := item.Extra[ReasoningDetailsKey]
	if !ok {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	details := make([]json.RawMessage, 0, len(list))
	for _, d := range list {
		trimmed := bytes.TrimSpace(d)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			details = append(details, json.RawMessage(trimmed))
		}
	}
	return details
}

func encodeDetails(details []json.RawMessage) json.RawMessage {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return raw
}

// inferTools derives tool definitions from tool-loop items so replayed calls
// reference a declared tool even when the client resent none. Function calls
// get a permissive schema; external call items reintroduce their tool type.
func inferTools(input api.InputPayload) []api.Tool {
	if input.IsText() {
		return nil
	}

	var inferred []api.Tool
	seen := make(map[string]bool)

	for _, item := range input.Items {
		if item.Type == api.ItemTypeFunctionCall {
			name := strings.TrimSpace(item.Name)
			if name == "" || strings.HasPrefix(name, tools.ReservedPrefix) {
				continue
			}
			key := "function:" + name
			if seen[key] {
				continue
			}
			seen[key] = true
			inferred = append(inferred, api.Tool{
				Type:        "function",
				Name:        name,
				Description: inferredToolDescription,
				Parameters:  inferredToolParameters,
			})
			continue
		}

		external := item.Type != api.ItemTypeFunctionCall && tools.IsCallItemType(item.Type) ||
			item.Type != api.ItemTypeFunctionCallOutput && tools.IsCallOutputItemType(item.Type)
		if !external {
			continue
		}
		ext, ok := tools.ExternalTypeFromItemType(item.Type)
		if !ok {
			continue
		}
		key := "builtin:" + ext
		if seen[key] {
			continue
		}
		seen[key] = true
		inferred = append(inferred, api.Tool{Type: ext})
	}

	return inferred
}

// mergeTools combines declared and inferred tools, declared first, deduped
// by identity key.
func mergeTools(declared, inferred []api.Tool) []api.Tool {
	if len(declared) == 0 && len(inferred) == 0 {
		return nil
	}
	merged := make([]api.Tool, 0, len(declared)+len(inferred))
	seen := make(map[string]bool)
	for _, list := range [][]api.Tool{declared, inferred} {
		for _, tool := range list {
			key := toolKey(tool)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, tool)
		}
	}
	return merged
}

func toolKey(tool api.Tool) string {
	if tool.Type == "function" || (tool.Type == "" && tool.Function != nil) {
		name := tool.Name
		if name == "" && tool.Function != nil {
			name = tool.Function.Name
		}
		return "function:" + name
	}
	return "builtin:" + tool.Type
}

func filterAllowed(declared, allowed []api.Tool) []api.Tool {
	allowedKeys := make(map[string]bool, len(allowed))
	for _, tool := range allowed {
		allowedKeys[toolKey(tool)] = true
	}
	filtered := make([]api.Tool, 0, len(declared))
	for _, tool := range declared {
		if allowedKeys[toolKey(tool)] {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

// upstreamMaxTokens maps max_output_tokens to the upstream limit. An absent
// value still sends the buffer so reasoning models keep room to think;
// non-positive client values pass through untouched.
func upstreamMaxTokens(maxOutput *int, buffer int) *int {
	if maxOutput == nil {
		if buffer <= 0 {
			return nil
		}
		value := buffer
		return &value
	}
	value := *maxOutput
	if value > 0 && buffer > 0 {
		value += buffer
	}
	return &value
}

// responseFormat lowers text.format to the chat dialect. A json_schema
// format must carry a compilable schema; unknown types are omitted.
func responseFormat(text *api.TextConfig) (*openrouter.ResponseFormat, error) {
	if text == nil || text.Format == nil {
		return nil, nil
	}
	switch text.Format.Type {
	case "json_schema":
		if err := tools.ValidateSchema(text.Format.Schema); err != nil {
			return nil, fmt.Errorf("text.format json_schema: %w", err)
		}
		return &openrouter.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &openrouter.JSONSchema{
				Name:   text.Format.Name,
				Strict: text.Format.Strict,
				Schema: text.Format.Schema,
			},
		}, nil
	case "json_object":
		return &openrouter.ResponseFormat{Type: "json_object"}, nil
	default:
		return nil, nil
	}
}

func validateReasoning(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] != '{' {
		return errReasoningNotObject
	}
	return nil
}

// normalizeContent keeps strings, part lists, and objects as-is; bare JSON
// scalars are sent as their text form.
func normalizeContent(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '"', '[', '{':
		return json.RawMessage(trimmed)
	default:
		return openrouter.TextContent(string(trimmed))
	}
}

// stringifyOutput renders a tool output value as the text body of a tool
// message: strings verbatim, null and absent empty, anything else compact
// JSON.
func stringifyOutput(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		return buf.String()
	}
	return string(trimmed)
}

func compactRaw(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	return json.RawMessage(trimmed)
}

func hasJSONValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && string(trimmed) != "null"
}
