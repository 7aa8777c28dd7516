package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/openbridge/internal/state"
	"github.com/haasonsaas/openbridge/pkg/api"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// storeGet, storePut, and storeDelete wrap the store in spans. Not-found and
// disabled outcomes are expected and do not mark the span failed.

func (s *Server) storeGet(ctx context.Context, responseID string) (*state.StoredTurn, error) {
	ctx, span := s.tracer.TraceStoreOperation(ctx, "get")
	defer span.End()
	turn, err := s.store.Get(ctx, responseID)
	if err != nil && !errors.Is(err, state.ErrNotFound) && !errors.Is(err, state.ErrDisabled) {
		s.tracer.RecordError(span, err)
	}
	return turn, err
}

func (s *Server) storePut(ctx context.Context, responseID string, turn *state.StoredTurn) error {
	ctx, span := s.tracer.TraceStoreOperation(ctx, "put")
	defer span.End()
	err := s.store.Put(ctx, responseID, turn)
	if err != nil && !errors.Is(err, state.ErrDisabled) {
		s.tracer.RecordError(span, err)
	}
	return err
}

func (s *Server) storeDelete(ctx context.Context, responseID string) (bool, error) {
	ctx, span := s.tracer.TraceStoreOperation(ctx, "delete")
	defer span.End()
	existed, err := s.store.Delete(ctx, responseID)
	if err != nil && !errors.Is(err, state.ErrDisabled) {
		s.tracer.RecordError(span, err)
	}
	return existed, err
}

// handleGetResponse serves the stored Response projection of a past turn.
func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	responseID := r.PathValue("id")

	stored, err := s.storeGet(ctx, responseID)
	switch {
	case errors.Is(err, state.ErrDisabled):
		writeError(w, notImplemented("State store is disabled"))
	case errors.Is(err, state.ErrNotFound):
		s.metrics.StoreOperationCounter.WithLabelValues("get", "miss").Inc()
		writeError(w, notFound("response_id not found"))
	case err != nil:
		s.metrics.StoreOperationCounter.WithLabelValues("get", "error").Inc()
		s.log.Warn(ctx, "state lookup failed", "response_id", responseID, "error", err.Error())
		writeError(w, internalError("State lookup failed"))
	default:
		s.metrics.StoreOperationCounter.WithLabelValues("get", "success").Inc()
		writeJSON(w, http.StatusOK, stored.Response)
	}
}

// handleDeleteResponse removes a stored turn. Deletion is idempotent: a
// second call still succeeds, reporting deleted=false.
func (s *Server) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	responseID := r.PathValue("id")

	existed, err := s.storeDelete(ctx, responseID)
	switch {
	case errors.Is(err, state.ErrDisabled):
		writeError(w, notImplemented("State store is disabled"))
	case err != nil:
		s.metrics.StoreOperationCounter.WithLabelValues("delete", "error").Inc()
		s.log.Warn(ctx, "state delete failed", "response_id", responseID, "error", err.Error())
		writeError(w, internalError("State delete failed"))
	default:
		s.metrics.StoreOperationCounter.WithLabelValues("delete", "success").Inc()
		writeJSON(w, http.StatusOK, api.DeleteResult{
			ID:      responseID,
			Object:  api.ObjectResponseDeleted,
			Deleted: existed,
		})
	}
}

// handleGetTrace serves one captured trace record, addressed by either the
// bridge request id or the response id it produced.
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	record, err := s.traces.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, notFound("trace not found"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
