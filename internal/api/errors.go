package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// apiError pairs an HTTP status with the OpenAI-style error body served to
// clients. Handlers build one per failure and hand it to writeError.
type apiError struct {
	status int
	info   api.Error
}

func (e *apiError) Error() string { return e.info.Message }

func badRequest(message string) *apiError {
	return &apiError{
		status: http.StatusBadRequest,
		info:   api.Error{Message: message, Type: "invalid_request_error"},
	}
}

func unauthorized(message string) *apiError {
	return &apiError{
		status: http.StatusUnauthorized,
		info:   api.Error{Message: message, Type: "unauthorized"},
	}
}

func notFound(message string) *apiError {
	return &apiError{
		status: http.StatusNotFound,
		info:   api.Error{Message: message, Type: "not_found"},
	}
}

func notImplemented(message string) *apiError {
	return &apiError{
		status: http.StatusNotImplemented,
		info:   api.Error{Message: message, Type: "not_implemented"},
	}
}

func badGateway(message string) *apiError {
	return &apiError{
		status: http.StatusBadGateway,
		info:   api.Error{Message: message, Type: "bad_gateway"},
	}
}

func internalError(message string) *apiError {
	return &apiError{
		status: http.StatusInternalServerError,
		info:   api.Error{Message: message, Type: "internal_error"},
	}
}

// upstreamError maps an upstream failure onto the client-facing error.
// Status replies pass through with their parsed error fields, a deadline
// becomes 504, and any other transport fault becomes 502, so clients can
// tell an upstream verdict from a bridge-side one.
func upstreamError(err error) *apiError {
	var se *openrouter.StatusError
	if errors.As(err, &se) {
		errType := se.ErrType
		if errType == "" {
			errType = "invalid_request_error"
		}
		return &apiError{
			status: se.Status,
			info: api.Error{
				Message: se.Message,
				Type:    errType,
				Param:   se.Param,
				Code:    se.Code,
			},
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apiError{
			status: http.StatusGatewayTimeout,
			info:   api.Error{Message: "Upstream request timed out", Type: "upstream_error"},
		}
	}
	return &apiError{
		status: http.StatusBadGateway,
		info:   api.Error{Message: err.Error(), Type: "upstream_error"},
	}
}

type errorEnvelope struct {
	Error api.Error `json:"error"`
}

// writeError serves one JSON error body. Streaming handlers must only call
// it before the first event frame goes out.
func writeError(w http.ResponseWriter, apiErr *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: apiErr.info})
}
