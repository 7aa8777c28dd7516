// Package api provides the wire types for the Responses surface exposed by
// OpenBridge: create requests with their ordered input items, response
// objects with their ordered output items, and the streaming event frames.
//
// The Responses convention models tool interactions as tagged items linked by
// a call_id. Items of unknown type keep their unrecognized fields in Extra so
// virtualized tool payloads round-trip without loss.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is the body of POST /v1/responses.
type Request struct {
	Model              string          `json:"model"`
	Input              InputPayload    `json:"input"`
	Instructions       string          `json:"instructions,omitempty"`
	Tools              []Tool          `json:"tools,omitempty"`
	ToolChoice         *ToolChoice     `json:"tool_choice,omitempty"`
	ParallelToolCalls  *bool           `json:"parallel_tool_calls,omitempty"`
	MaxOutputTokens    *int            `json:"max_output_tokens,omitempty"`
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"top_p,omitempty"`
	Verbosity          string          `json:"verbosity,omitempty"`
	Text               *TextConfig     `json:"text,omitempty"`
	Stream             bool            `json:"stream,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
	Store              *bool           `json:"store,omitempty"`
	Reasoning          json.RawMessage `json:"reasoning,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
}

// InputPayload is the request input: either a bare string (shorthand for a
// single user message) or an ordered list of input items.
type InputPayload struct {
	Text  string
	Items []InputItem

	isText bool
}

// TextInput returns an InputPayload carrying a bare string.
func TextInput(text string) InputPayload {
	return InputPayload{Text: text, isText: true}
}

// ItemsInput returns an InputPayload carrying an item list.
func ItemsInput(items ...InputItem) InputPayload {
	return InputPayload{Items: items}
}

// IsText reports whether the payload was the string form.
func (p InputPayload) IsText() bool { return p.isText }

func (p *InputPayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("input must not be empty")
	}
	switch trimmed[0] {
	case '"':
		p.isText = true
		p.Items = nil
		return json.Unmarshal(trimmed, &p.Text)
	case '[':
		p.isText = false
		p.Text = ""
		return json.Unmarshal(trimmed, &p.Items)
	default:
		return fmt.Errorf("input must be a string or an array of input items")
	}
}

func (p InputPayload) MarshalJSON() ([]byte, error) {
	if p.isText {
		return json.Marshal(p.Text)
	}
	if p.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Items)
}

// InputItem is one element of the request input sequence. It is a tagged
// variant: message-like items carry Role and Content, tool-loop items carry
// CallID plus Name/Arguments or Output, reasoning items carry replay details.
// Fields not listed here (for example the projected fields of a virtualized
// *_call item) are preserved in Extra.
type InputItem struct {
	Type      string          `json:"type,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	ID        string          `json:"id,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    string          `json:"status,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var inputItemKnownKeys = []string{
	"type", "role", "content", "id", "call_id", "name", "arguments", "output", "status",
}

func (it *InputItem) UnmarshalJSON(data []byte) error {
	type alias InputItem
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range inputItemKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	known.Extra = raw
	*it = InputItem(known)
	return nil
}

func (it InputItem) MarshalJSON() ([]byte, error) {
	type alias InputItem
	base, err := json.Marshal(alias(it))
	if err != nil {
		return nil, err
	}
	if len(it.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range it.Extra {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// Tool is one entry of the request tools list. Function tools arrive either
// flat ({type, name, parameters}) or nested ({type:"function", function:{…}});
// every other type names a virtualized built-in or external tool.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Function    *ToolFunction   `json:"function,omitempty"`
}

// ToolFunction is the nested function declaration of a function tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoice is the request tool_choice: a bare mode string
// ("auto"|"none"|"required"), a function selector, or an allowed-tools
// filter. Exactly one of Mode, Function, Allowed is set.
type ToolChoice struct {
	Mode     string
	Function *ToolChoiceFunction
	Allowed  *ToolChoiceAllowedTools
}

// ToolChoiceFunction selects a single function by name.
type ToolChoiceFunction struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ToolChoiceAllowedTools restricts the model to a subset of the declared
// tools and sets the calling mode for that subset.
type ToolChoiceAllowedTools struct {
	Type  string `json:"type"`
	Mode  string `json:"mode"`
	Tools []Tool `json:"tools"`
}

func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		tc.Function = nil
		tc.Allowed = nil
		return json.Unmarshal(trimmed, &tc.Mode)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return err
	}
	switch head.Type {
	case "function":
		tc.Function = &ToolChoiceFunction{}
		return json.Unmarshal(trimmed, tc.Function)
	case "allowed_tools":
		tc.Allowed = &ToolChoiceAllowedTools{}
		return json.Unmarshal(trimmed, tc.Allowed)
	default:
		return fmt.Errorf("unsupported tool_choice type %q", head.Type)
	}
}

func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	switch {
	case tc.Function != nil:
		return json.Marshal(tc.Function)
	case tc.Allowed != nil:
		return json.Marshal(tc.Allowed)
	default:
		return json.Marshal(tc.Mode)
	}
}

// TextConfig carries the structured-output selection.
type TextConfig struct {
	Format *TextFormat `json:"format,omitempty"`
}

// TextFormat selects json_schema or json_object output.
type TextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}
