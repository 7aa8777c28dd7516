package openrouter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Retryable upstream statuses: rate limiting and transient 5xx failures.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// StatusError is a non-2xx upstream reply. The decoded OpenAI-style error
// fields are kept alongside the raw body so callers can pass the failure
// through or inspect it for degrade handling.
type StatusError struct {
	Status    int
	Message   string
	ErrType   string
	Param     *string
	Code      *string
	RequestID string
	Body      []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the status warrants another attempt.
func (e *StatusError) Retryable() bool {
	return retryableStatuses[e.Status]
}

// transportError wraps connection-level failures; these are always worth a
// retry since the upstream never produced a verdict.
type transportError struct {
	err error
}

func (e *transportError) Error() string   { return "upstream transport: " + e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Retryable() bool { return true }

// parseErrorBody decodes an upstream error reply. Lookup order follows the
// OpenAI dialect: error.message, then a top-level message, then the raw text.
func parseErrorBody(status int, body []byte, requestID string) *StatusError {
	se := &StatusError{
		Status:    status,
		Message:   strings.TrimSpace(string(body)),
		RequestID: requestID,
		Body:      body,
	}

	var envelope struct {
		Error *struct {
			Message string  `json:"message"`
			Type    string  `json:"type"`
			Param   *string `json:"param"`
			Code    *string `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return se
	}
	if envelope.Error != nil && envelope.Error.Message != "" {
		se.Message = envelope.Error.Message
		se.ErrType = envelope.Error.Type
		se.Param = envelope.Error.Param
		se.Code = envelope.Error.Code
		return se
	}
	if envelope.Message != "" {
		se.Message = envelope.Message
	}
	return se
}
