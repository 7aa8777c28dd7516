package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/haasonsaas/openbridge/internal/ids"
	"github.com/haasonsaas/openbridge/internal/observability"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/internal/state"
	"github.com/haasonsaas/openbridge/internal/streaming"
	"github.com/haasonsaas/openbridge/internal/trace"
	"github.com/haasonsaas/openbridge/internal/translate"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// handleCreateResponse is the per-request controller: rehydrate history,
// translate, call upstream (single shot or stream), translate back, persist
// the turn.
func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var record *trace.Record
	if s.traces.Enabled() {
		record = &trace.Record{
			RequestID: observability.RequestIDFromContext(ctx),
			TraceID:   observability.GetTraceID(ctx),
			Method:    r.Method,
			Path:      r.URL.Path,
		}
		defer func() { s.traces.Capture(ctx, record) }()
	}

	var req api.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(ctx, w, record, badRequest("Invalid request body: "+err.Error()))
		return
	}
	if req.Model == "" {
		s.fail(ctx, w, record, badRequest("model is required"))
		return
	}
	if record != nil {
		record.Stream = &req.Stream
		record.ResponsesRequest = trace.Object(&req)
	}

	var history []openrouter.ChatMessage
	var stored *state.StoredTurn
	if req.PreviousResponseID != "" {
		prior, err := s.storeGet(ctx, req.PreviousResponseID)
		switch {
		case errors.Is(err, state.ErrDisabled):
			s.fail(ctx, w, record, notImplemented("State store is disabled"))
			return
		case errors.Is(err, state.ErrNotFound):
			s.metrics.StoreOperationCounter.WithLabelValues("get", "miss").Inc()
			s.fail(ctx, w, record, notFound("previous_response_id not found"))
			return
		case err != nil:
			s.metrics.StoreOperationCounter.WithLabelValues("get", "error").Inc()
			s.log.Warn(ctx, "state lookup failed",
				"previous_response_id", req.PreviousResponseID,
				"error", err.Error())
			s.fail(ctx, w, record, internalError("State lookup failed"))
			return
		}
		s.metrics.StoreOperationCounter.WithLabelValues("get", "success").Inc()
		stored = prior
		history = prior.Messages
	}

	result, err := translate.Request(&req, history, translate.Options{
		Registry:        s.registry,
		ModelMap:        s.modelMap,
		MaxTokensBuffer: s.maxTokensBuffer,
	})
	if err != nil {
		s.fail(ctx, w, record, badRequest(err.Error()))
		return
	}
	if stored != nil {
		result.ToolMap.MergeFunctionMap(stored.ToolFunctions)
	}

	responseID := ids.NewResponseID()
	createdAt := time.Now().Unix()
	ctx = observability.ContextWithResponseID(ctx, responseID)

	if record != nil {
		record.ResponseID = responseID
		record.ChatRequest = trace.Object(result.Chat)
		record.MessagesForState = trace.Objects(result.MessagesForState)
		record.ToolMap = result.ToolMap.FunctionMap()
	}

	payload, err := result.Chat.Payload()
	if err != nil {
		s.fail(ctx, w, record, internalError("Encode upstream payload: "+err.Error()))
		return
	}

	if req.Stream {
		s.streamResponse(ctx, w, &req, result, payload, responseID, createdAt, record)
		return
	}
	s.completeResponse(ctx, w, &req, result, payload, responseID, createdAt, record)
}

// completeResponse runs the single-shot path: call upstream with degrade
// handling, replay an empty completion once, then serve and persist the turn.
func (s *Server) completeResponse(ctx context.Context, w http.ResponseWriter, req *api.Request, result *translate.Result, payload map[string]any, responseID string, createdAt int64, record *trace.Record) {
	completion, err := s.callUpstream(ctx, payload)
	if err != nil {
		s.fail(ctx, w, record, upstreamError(err))
		return
	}

	// Some upstreams return 200 with empty choices on short turns. One
	// replay usually resolves it, unless the client asked for zero output.
	if translate.EmptyCompletion(completion) && allowsOutput(req.MaxOutputTokens) {
		s.metrics.EmptyCompletionCounter.Inc()
		s.log.Warn(ctx, "upstream returned empty completion, retrying once")
		completion, err = s.callUpstream(ctx, payload)
		if err != nil {
			s.fail(ctx, w, record, upstreamError(err))
			return
		}
		if translate.EmptyCompletion(completion) {
			s.metrics.EmptyCompletionCounter.Inc()
			s.fail(ctx, w, record, badGateway("Upstream returned empty completion"))
			return
		}
	}

	resp := translate.BuildResponse(completion, result.ToolMap, translate.BuildOptions{
		ResponseID: responseID,
		CreatedAt:  createdAt,
		Model:      result.Chat.Model,
		Reasoning:  req.Reasoning,
	})

	var assistant *openrouter.ChatMessage
	if len(completion.Choices) > 0 {
		assistant = translate.AssistantMessage(completion.Choices[0].Message)
	}
	s.persistTurn(ctx, req, result, resp, assistant)

	if record != nil {
		record.ResponsesResponse = trace.Object(resp)
		record.AssistantMessage = trace.Object(assistant)
		record.Upstream = trace.Object(completion)
	}

	writeJSON(w, http.StatusOK, resp)
}

// streamResponse runs the SSE path. A failure before the first event falls
// back to a JSON error; afterwards the runner has already delivered an
// in-band response.failed and the stream just ends.
func (s *Server) streamResponse(ctx context.Context, w http.ResponseWriter, req *api.Request, result *translate.Result, payload map[string]any, responseID string, createdAt int64, record *trace.Record) {
	tr := streaming.NewTranslator(responseID, result.Chat.Model, createdAt, result.ToolMap)
	writer := newEventWriter(w)

	runResult, err := s.runner.Run(ctx, payload, tr, writer.Write)
	if err != nil {
		if !runResult.Started {
			s.fail(ctx, w, record, upstreamError(err))
			return
		}
		if record != nil {
			record.Error = map[string]any{"message": err.Error()}
		}
		return
	}

	s.persistTurn(ctx, req, result, runResult.Response, runResult.Assistant)

	if record != nil {
		record.ResponsesResponse = trace.Object(runResult.Response)
		record.AssistantMessage = trace.Object(runResult.Assistant)
	}
}

// callUpstream performs one logical upstream call: the client's retry policy
// first, then a single degrade replay when the rejection names a configured
// fragile field present in the payload. The degraded verdict is final either
// way.
func (s *Server) callUpstream(ctx context.Context, payload map[string]any) (*openrouter.ChatCompletion, error) {
	completion, err := s.upstream.CreateChatCompletion(ctx, payload)
	if err == nil {
		return completion, nil
	}

	var se *openrouter.StatusError
	if errors.As(err, &se) {
		reduced, field := openrouter.ApplyDegradeFields(payload, se.Message, s.degradeFields)
		if reduced != nil {
			s.metrics.DegradeCounter.WithLabelValues(field).Inc()
			s.log.Info(ctx, "retrying upstream call without degraded field", "field", field)
			return s.upstream.CreateChatCompletion(ctx, reduced)
		}
	}
	return nil, err
}

// persistTurn writes the completed turn unless the client opted out or the
// backend is disabled. Store failures degrade to a warning: the client
// already holds a valid response.
func (s *Server) persistTurn(ctx context.Context, req *api.Request, result *translate.Result, resp *api.Response, assistant *openrouter.ChatMessage) {
	if req.Store != nil && !*req.Store {
		return
	}
	if !persistable(resp) {
		return
	}

	messages := make([]openrouter.ChatMessage, 0, len(result.MessagesForState)+1)
	messages = append(messages, result.MessagesForState...)
	if assistant != nil {
		messages = append(messages, *assistant)
	}

	turn := &state.StoredTurn{
		Response:      *resp,
		Messages:      messages,
		ToolFunctions: result.ToolMap.FunctionMap(),
		Model:         result.Chat.Model,
	}
	if err := s.storePut(ctx, resp.ID, turn); err != nil {
		if errors.Is(err, state.ErrDisabled) {
			return
		}
		s.metrics.StoreOperationCounter.WithLabelValues("put", "error").Inc()
		s.log.Warn(ctx, "turn not persisted", "error", err.Error())
		return
	}
	s.metrics.StoreOperationCounter.WithLabelValues("put", "success").Inc()
}

// persistable reports whether a turn is worth storing: a completed response,
// or an incomplete one that still carries output.
func persistable(resp *api.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.Status {
	case api.StatusCompleted:
		return true
	case api.StatusIncomplete:
		return len(resp.Output) > 0
	default:
		return false
	}
}

// allowsOutput reports whether the requested token limit leaves room for any
// visible output. nil means no limit.
func allowsOutput(maxOutputTokens *int) bool {
	return maxOutputTokens == nil || *maxOutputTokens > 0
}

// fail records the failure on the trace record, logs it, and serves the JSON
// error body.
func (s *Server) fail(ctx context.Context, w http.ResponseWriter, record *trace.Record, apiErr *apiError) {
	if record != nil {
		record.Error = map[string]any{
			"status":  apiErr.status,
			"message": apiErr.info.Message,
			"type":    apiErr.info.Type,
		}
	}
	if apiErr.status >= 500 {
		s.log.Warn(ctx, "request failed", "status", apiErr.status, "error", apiErr.info.Message)
	} else {
		s.log.Debug(ctx, "request rejected", "status", apiErr.status, "error", apiErr.info.Message)
	}
	writeError(w, apiErr)
}
