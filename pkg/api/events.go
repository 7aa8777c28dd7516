package api

// EventType names a Responses stream event. The value doubles as the SSE
// `event:` field and the `type` field inside the JSON payload.
type EventType string

// Stream event types, in the order a successful text turn emits them.
const (
	EventResponseCreated   EventType = "response.created"
	EventOutputItemAdded   EventType = "response.output_item.added"
	EventContentPartAdded  EventType = "response.content_part.added"
	EventOutputTextDelta   EventType = "response.output_text.delta"
	EventOutputTextDone    EventType = "response.output_text.done"
	EventContentPartDone   EventType = "response.content_part.done"
	EventFunctionArgsDelta EventType = "response.function_call_arguments.delta"
	EventFunctionArgsDone  EventType = "response.function_call_arguments.done"
	EventOutputItemDone    EventType = "response.output_item.done"
	EventResponseCompleted EventType = "response.completed"
	EventResponseFailed    EventType = "response.failed"
)

// StreamEvent is the JSON payload of one SSE frame. Fields are populated per
// event type; index and text fields are pointers so that zero values (index
// 0, empty delta) still serialize.
type StreamEvent struct {
	Type           EventType    `json:"type"`
	SequenceNumber int          `json:"sequence_number"`
	Response       *Response    `json:"response,omitempty"`
	Error          *Error       `json:"error,omitempty"`
	OutputIndex    *int         `json:"output_index,omitempty"`
	ContentIndex   *int         `json:"content_index,omitempty"`
	ItemID         string       `json:"item_id,omitempty"`
	Item           *OutputItem  `json:"item,omitempty"`
	Part           *ContentPart `json:"part,omitempty"`
	Delta          *string      `json:"delta,omitempty"`
	Text           *string      `json:"text,omitempty"`
	Arguments      *string      `json:"arguments,omitempty"`
}
