package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haasonsaas/openbridge/pkg/api"
)

// eventWriter serializes stream events as SSE frames. Headers go out lazily
// with the first event, so a failure before anything is emitted can still
// fall back to a plain JSON error with its own status code.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	flusher, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: flusher}
}

// Write emits one `event: <type>` / `data: <json>` frame and flushes it.
func (ew *eventWriter) Write(event api.StreamEvent) error {
	if !ew.started {
		ew.started = true
		header := ew.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		ew.w.WriteHeader(http.StatusOK)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(ew.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	if ew.flusher != nil {
		ew.flusher.Flush()
	}
	return nil
}
