// Package ids generates the prefixed identifiers used across the bridge.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New returns "<prefix>_<32 hex chars>".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewResponseID returns a fresh response id ("resp_...").
func NewResponseID() string { return New("resp") }

// NewItemID returns a fresh output item id ("item_...").
func NewItemID() string { return New("item") }

// NewCallID returns a fresh tool call id ("call_...").
func NewCallID() string { return New("call") }

// NewRequestID returns a fresh request correlation id ("req_...").
func NewRequestID() string { return New("req") }
