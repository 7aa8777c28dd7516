package api

import "encoding/json"

// Object discriminators carried by response envelopes.
const (
	ObjectResponse        = "response"
	ObjectResponseDeleted = "response.deleted"
)

// Response lifecycle states.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// Output item types produced by the bridge. Virtualized tool calls use the
// external type with a "_call" suffix (for example "apply_patch_call") and
// are not enumerated here.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
	ItemTypeReasoning          = "reasoning"
)

// ContentTypeOutputText is the single content part type emitted for
// assistant text.
const ContentTypeOutputText = "output_text"

// Incomplete reasons surfaced through IncompleteDetails.
const (
	IncompleteMaxOutputTokens = "max_output_tokens"
	IncompleteContentFilter   = "content_filter"
)

// Response is the Responses object returned by POST /v1/responses and
// GET /v1/responses/{id}, and embedded in the created/completed/failed
// stream events.
type Response struct {
	ID                string             `json:"id"`
	Object            string             `json:"object"`
	CreatedAt         int64              `json:"created_at"`
	Status            string             `json:"status"`
	Model             string             `json:"model"`
	Output            []OutputItem       `json:"output"`
	Error             *Error             `json:"error,omitempty"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Usage             map[string]any     `json:"usage,omitempty"`
	Reasoning         json.RawMessage    `json:"reasoning,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

// OutputItem is one element of Response.Output. Message items carry Role and
// Content; function_call and virtualized *_call items carry CallID, Name and
// the raw Arguments string; reasoning items carry Summary plus provider
// details in Extra. Expanded argument fields of virtualized calls also live
// in Extra and are flattened into the serialized object.
type OutputItem struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []ContentPart   `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var outputItemKnownKeys = []string{
	"id", "type", "status", "role", "content", "call_id", "name", "arguments", "summary",
}

func (it *OutputItem) UnmarshalJSON(data []byte) error {
	type alias OutputItem
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range outputItemKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	known.Extra = raw
	*it = OutputItem(known)
	return nil
}

func (it OutputItem) MarshalJSON() ([]byte, error) {
	type alias OutputItem
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

// ContentPart is one element of a message item's content list.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Error is the OpenAI-shaped error detail. Param and Code serialize as null
// when unset so clients that key on their presence see a stable shape.
type Error struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// IncompleteDetails explains a response with status "incomplete".
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// DeleteResult acknowledges DELETE /v1/responses/{id}.
type DeleteResult struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}
