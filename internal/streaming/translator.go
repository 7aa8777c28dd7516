// Package streaming converts a live Chat Completions SSE stream into the
// Responses event protocol. The Translator is a pure state machine fed one
// upstream frame at a time; the Runner drives it against a real connection
// and owns the retry window that closes once the first event reaches the
// client.
package streaming

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/haasonsaas/openbridge/internal/ids"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/tools"
	"github.com/haasonsaas/openbridge/internal/translate"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// toolCallState accumulates one upstream tool call across fragments. The
// upstream addresses fragments by choice-local index; the output index pins
// where the finished item lands in the response output.
type toolCallState struct {
	index        int
	callID       string
	name         string
	arguments    strings.Builder
	outputIndex  int
	externalType string
}

// Translator folds upstream frames into Responses stream events and keeps
// enough state to close every open item and synthesize the final response
// when the stream ends. It is not safe for concurrent use.
type Translator struct {
	responseID string
	model      string
	createdAt  int64
	toolMap    *tools.ToolMap

	sequence     int
	outputItems  []api.OutputItem
	toolCalls    map[int]*toolCallState
	finishReason string
	usage        map[string]any

	// textOutputIndex is -1 until the first content delta opens the
	// message item.
	textOutputIndex int
	textItemID      string
	textContent     strings.Builder

	// reasoningOutputIndex is -1 until the first reasoning_details delta
	// claims an output slot. Reasoning produces no stream events of its
	// own; the accumulated details surface on the final snapshots and on
	// the stored assistant message.
	reasoningOutputIndex int
	reasoningDetails     []json.RawMessage
}

// NewTranslator starts a translation for one response. The identity fields
// are generated by the caller before the upstream call so the stream, the
// final response, and the stored turn all agree on them.
func NewTranslator(responseID, model string, createdAt int64, toolMap *tools.ToolMap) *Translator {
	return &Translator{
		responseID:           responseID,
		model:                model,
		createdAt:            createdAt,
		toolMap:              toolMap,
		toolCalls:            make(map[int]*toolCallState),
		textOutputIndex:      -1,
		reasoningOutputIndex: -1,
	}
}

// next allocates the next event frame with its sequence number.
func (t *Translator) next(eventType api.EventType) api.StreamEvent {
	ev := api.StreamEvent{Type: eventType, SequenceNumber: t.sequence}
	t.sequence++
	return ev
}

// StartEvents opens the response. Emitted exactly once, when the first
// upstream frame arrives; after this point failures surface as stream
// events instead of HTTP errors.
func (t *Translator) StartEvents() []api.StreamEvent {
	ev := t.next(api.EventResponseCreated)
	ev.Response = t.snapshot(api.StatusInProgress)
	return []api.StreamEvent{ev}
}

// ProcessChunk folds one upstream frame into the state machine and returns
// the events it produces, possibly none.
func (t *Translator) ProcessChunk(chunk *openrouter.ChatChunk) []api.StreamEvent {
	if chunk == nil {
		return nil
	}

	var events []api.StreamEvent
	if chunk.Usage != nil {
		t.usage = chunk.Usage
	}
	for _, choice := range chunk.Choices {
		if len(choice.Delta.ReasoningDetails) > 0 {
			t.collectReasoning(choice.Delta.ReasoningDetails)
		}
		if choice.Delta.Content != nil {
			events = append(events, t.textDelta(*choice.Delta.Content)...)
		}
		if len(choice.Delta.ToolCalls) > 0 {
			events = append(events, t.toolCallDeltas(choice.Delta.ToolCalls)...)
		}
		if choice.FinishReason != "" {
			t.finishReason = choice.FinishReason
		}
	}
	return events
}

// collectReasoning folds a reasoning_details fragment into the aggregate.
// The first fragment claims the reasoning item's slot in the output, which
// for reasoning models is ahead of any text or tool call. No events are
// emitted; the item rides the snapshots only.
func (t *Translator) collectReasoning(raw json.RawMessage) {
	var details []json.RawMessage
	if err := json.Unmarshal(raw, &details); err != nil || len(details) == 0 {
		return
	}

	if t.reasoningOutputIndex < 0 {
		t.reasoningOutputIndex = len(t.outputItems)
		t.outputItems = append(t.outputItems, api.OutputItem{
			ID:      ids.NewItemID(),
			Type:    api.ItemTypeReasoning,
			Summary: json.RawMessage(`[]`),
		})
	}

	t.reasoningDetails = append(t.reasoningDetails, details...)
	combined, err := json.Marshal(t.reasoningDetails)
	if err != nil {
		return
	}
	t.outputItems[t.reasoningOutputIndex].Extra = map[string]json.RawMessage{
		translate.ReasoningDetailsKey: combined,
	}
}

// textDelta extends the assistant message text. The first delta, even an
// empty one, opens the message item and its text part.
func (t *Translator) textDelta(delta string) []api.StreamEvent {
	var events []api.StreamEvent

	if t.textOutputIndex < 0 {
		item := api.OutputItem{
			ID:   ids.NewItemID(),
			Type: api.ItemTypeMessage,
			Role: "assistant",
			Content: []api.ContentPart{
				{Type: api.ContentTypeOutputText, Text: ""},
			},
		}
		t.textOutputIndex = len(t.outputItems)
		t.textItemID = item.ID
		t.outputItems = append(t.outputItems, item)

		added := t.next(api.EventOutputItemAdded)
		added.OutputIndex = intRef(t.textOutputIndex)
		added.Item = snapshotItem(item)
		events = append(events, added)

		part := t.next(api.EventContentPartAdded)
		part.OutputIndex = intRef(t.textOutputIndex)
		part.ContentIndex = intRef(0)
		part.ItemID = item.ID
		part.Part = &api.ContentPart{Type: api.ContentTypeOutputText, Text: ""}
		events = append(events, part)
	}

	t.textContent.WriteString(delta)
	t.outputItems[t.textOutputIndex].Content[0].Text = t.textContent.String()

	ev := t.next(api.EventOutputTextDelta)
	ev.OutputIndex = intRef(t.textOutputIndex)
	ev.ContentIndex = intRef(0)
	ev.ItemID = t.textItemID
	ev.Delta = strRef(delta)
	events = append(events, ev)
	return events
}

// toolCallDeltas folds incremental tool-call fragments. Fragments without an
// index extend call 0. The call id is fixed by the first fragment that
// carries one; later corrections are ignored so the paired done events stay
// consistent. A name arriving after the opening fragment re-virtualizes the
// stored item in place.
func (t *Translator) toolCallDeltas(deltas []openrouter.ToolCallDelta) []api.StreamEvent {
	var events []api.StreamEvent
	for _, tc := range deltas {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		state := t.toolCalls[index]

		callID := tc.ID
		if callID == "" {
			if state != nil {
				callID = state.callID
			} else {
				callID = ids.NewCallID()
			}
		}

		var name, argumentsDelta string
		if tc.Function != nil {
			name = tc.Function.Name
			argumentsDelta = tc.Function.Arguments
		}
		if name == "" && state != nil {
			name = state.name
		}

		if state == nil {
			itemType, external := t.toolMap.ResolveUpstreamName(name)
			displayName := name
			if external != "" {
				displayName = external
			}
			item := api.OutputItem{
				ID:     ids.NewItemID(),
				Type:   itemType,
				CallID: callID,
				Name:   displayName,
			}
			outputIndex := len(t.outputItems)
			t.outputItems = append(t.outputItems, item)

			state = &toolCallState{
				index:        index,
				callID:       callID,
				name:         name,
				outputIndex:  outputIndex,
				externalType: external,
			}
			t.toolCalls[index] = state

			added := t.next(api.EventOutputItemAdded)
			added.OutputIndex = intRef(outputIndex)
			added.Item = snapshotItem(item)
			events = append(events, added)
		} else if name != "" && name != state.name {
			state.name = name
			item := &t.outputItems[state.outputIndex]
			if state.externalType == "" {
				if itemType, external := t.toolMap.ResolveUpstreamName(name); external != "" {
					state.externalType = external
					item.Type = itemType
					item.Name = external
				} else {
					item.Name = name
				}
			}
		}

		if argumentsDelta != "" {
			state.arguments.WriteString(argumentsDelta)
			t.outputItems[state.outputIndex].Arguments = state.arguments.String()

			ev := t.next(api.EventFunctionArgsDelta)
			ev.OutputIndex = intRef(state.outputIndex)
			ev.ItemID = t.outputItems[state.outputIndex].ID
			ev.Delta = strRef(argumentsDelta)
			events = append(events, ev)
		}
	}
	return events
}

// FinishEvents closes every open item and completes the response. Text
// closes first, then tool calls in output order, then the final snapshot.
func (t *Translator) FinishEvents() []api.StreamEvent {
	var events []api.StreamEvent

	if t.textOutputIndex >= 0 {
		text := t.textContent.String()

		done := t.next(api.EventOutputTextDone)
		done.OutputIndex = intRef(t.textOutputIndex)
		done.ContentIndex = intRef(0)
		done.ItemID = t.textItemID
		done.Text = strRef(text)
		events = append(events, done)

		partDone := t.next(api.EventContentPartDone)
		partDone.OutputIndex = intRef(t.textOutputIndex)
		partDone.ContentIndex = intRef(0)
		partDone.ItemID = t.textItemID
		partDone.Part = &api.ContentPart{Type: api.ContentTypeOutputText, Text: text}
		events = append(events, partDone)

		itemDone := t.next(api.EventOutputItemDone)
		itemDone.OutputIndex = intRef(t.textOutputIndex)
		itemDone.Item = snapshotItem(t.outputItems[t.textOutputIndex])
		events = append(events, itemDone)
	}

	for _, state := range t.sortedToolStates() {
		arguments := state.arguments.String()

		argsDone := t.next(api.EventFunctionArgsDone)
		argsDone.OutputIndex = intRef(state.outputIndex)
		argsDone.ItemID = t.outputItems[state.outputIndex].ID
		argsDone.Arguments = strRef(arguments)
		events = append(events, argsDone)

		if state.externalType != "" {
			t.outputItems[state.outputIndex].Extra = tools.ExpandCallArguments(arguments)
		}

		itemDone := t.next(api.EventOutputItemDone)
		itemDone.OutputIndex = intRef(state.outputIndex)
		itemDone.Item = snapshotItem(t.outputItems[state.outputIndex])
		events = append(events, itemDone)
	}

	completed := t.next(api.EventResponseCompleted)
	completed.Response = t.FinalResponse()
	return append(events, completed)
}

// FailureEvent wraps an upstream failure that happened after the response
// was opened. The partial output accumulated so far rides along in the
// snapshot.
func (t *Translator) FailureEvent(errInfo *api.Error) api.StreamEvent {
	ev := t.next(api.EventResponseFailed)
	resp := t.snapshot(api.StatusFailed)
	resp.Error = errInfo
	ev.Response = resp
	ev.Error = errInfo
	return ev
}

// FinalResponse synthesizes the response object the stream converges to,
// with the same finish-reason mapping as the non-stream path.
func (t *Translator) FinalResponse() *api.Response {
	status := api.StatusCompleted
	var details *api.IncompleteDetails
	switch t.finishReason {
	case "length":
		status = api.StatusIncomplete
		details = &api.IncompleteDetails{Reason: api.IncompleteMaxOutputTokens}
	case "content_filter":
		status = api.StatusIncomplete
		details = &api.IncompleteDetails{Reason: api.IncompleteContentFilter}
	}

	resp := t.snapshot(status)
	resp.IncompleteDetails = details
	return resp
}

// AssistantMessage rebuilds the upstream assistant turn for the stored
// conversation: accumulated tool calls in output order, the final text, and
// the reasoning details to replay next turn. Returns nil when the stream
// produced none of them.
func (t *Translator) AssistantMessage() *openrouter.ChatMessage {
	states := t.sortedToolStates()
	calls := make([]openrouter.ToolCall, 0, len(states))
	for _, state := range states {
		calls = append(calls, openrouter.ToolCall{
			ID:   state.callID,
			Type: "function",
			Function: openrouter.ToolCallFunction{
				Name:      state.name,
				Arguments: state.arguments.String(),
			},
		})
	}

	msg := openrouter.ChatMessage{Role: "assistant"}
	if text := t.textContent.String(); text != "" {
		msg.Content = openrouter.TextContent(text)
	}
	if len(calls) > 0 {
		msg.ToolCalls = calls
	}
	if len(t.reasoningDetails) > 0 {
		if combined, err := json.Marshal(t.reasoningDetails); err == nil {
			msg.ReasoningDetails = combined
		}
	}
	if msg.Content == nil && len(msg.ToolCalls) == 0 && msg.ReasoningDetails == nil {
		return nil
	}
	return &msg
}

// snapshot copies the current output into a response object.
func (t *Translator) snapshot(status string) *api.Response {
	output := make([]api.OutputItem, len(t.outputItems))
	copy(output, t.outputItems)
	return &api.Response{
		ID:        t.responseID,
		Object:    api.ObjectResponse,
		CreatedAt: t.createdAt,
		Status:    status,
		Model:     t.model,
		Output:    output,
		Usage:     t.usage,
	}
}

func (t *Translator) sortedToolStates() []*toolCallState {
	states := make([]*toolCallState, 0, len(t.toolCalls))
	for _, state := range t.toolCalls {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].outputIndex < states[j].outputIndex
	})
	return states
}

// snapshotItem copies an output item with its own content slice so later
// mutations do not reach into already emitted events.
func snapshotItem(item api.OutputItem) *api.OutputItem {
	copied := item
	if item.Content != nil {
		copied.Content = make([]api.ContentPart, len(item.Content))
		copy(copied.Content, item.Content)
	}
	return &copied
}

func intRef(v int) *int       { return &v }
func strRef(s string) *string { return &s }
