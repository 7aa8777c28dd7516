package openrouter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamDonePayload is the sentinel frame terminating an upstream stream.
const streamDonePayload = "[DONE]"

// ChatStream reads decoded frames off a live SSE body. It is not safe for
// concurrent use; the bridge consumes it from a single loop.
type ChatStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	requestID string
	done      bool
}

func newChatStream(body io.ReadCloser, requestID string) *ChatStream {
	scanner := bufio.NewScanner(body)
	// Argument fragments can make individual frames large.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ChatStream{
		body:      body,
		scanner:   scanner,
		requestID: requestID,
	}
}

// RequestID returns the upstream correlation id from the response headers.
func (s *ChatStream) RequestID() string { return s.requestID }

// Recv returns the next decoded frame. io.EOF signals the [DONE] marker or
// the end of the body; any other error ends the stream abnormally.
func (s *ChatStream) Recv() (*ChatChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == streamDonePayload {
			s.done = true
			return nil, io.EOF
		}

		var chunk ChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream frame: %w", err)
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, &transportError{err: err}
	}
	s.done = true
	return nil, io.EOF
}

// Close releases the underlying body. Safe to call multiple times.
func (s *ChatStream) Close() error {
	s.done = true
	return s.body.Close()
}
