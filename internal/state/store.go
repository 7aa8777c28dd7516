// Package state persists completed turns so follow-up requests can resolve
// previous_response_id into conversation history and tool mappings.
package state

import (
	"context"
	"errors"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// ErrNotFound is returned when a response id is unknown or expired.
var ErrNotFound = errors.New("response not found")

// StoredTurn is the persisted record of one completed turn: the Responses
// object served to the client, the upstream message history to replay on the
// next turn (without the turn's instructions), the virtualized tool-name
// entries, and the resolved upstream model.
type StoredTurn struct {
	// Response is the Responses object as returned to the client.
	Response api.Response `json:"response"`

	// Messages is the chat history including the assistant reply, ready to
	// prepend to the next turn's input. System messages derived from
	// instructions are never stored.
	Messages []openrouter.ChatMessage `json:"messages"`

	// ToolFunctions maps virtualized upstream function names to their
	// external tool types for the turn.
	ToolFunctions map[string]string `json:"tool_function_map"`

	// Model is the resolved upstream model identifier.
	Model string `json:"model"`
}

// Store persists turns by response id. Implementations handle their own
// locking; the orchestrator issues at most one Put per response id.
type Store interface {
	// Get returns the stored turn or ErrNotFound.
	Get(ctx context.Context, responseID string) (*StoredTurn, error)

	// Put stores the turn under the response id, replacing any prior entry.
	Put(ctx context.Context, responseID string, turn *StoredTurn) error

	// Delete removes the entry and reports whether one existed. Deleting a
	// missing id is not an error.
	Delete(ctx context.Context, responseID string) (bool, error)

	// Close releases backend resources.
	Close() error
}
