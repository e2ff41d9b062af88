package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
)

// Writer frames protocol documents onto an HTTP response as a chunked
// stream the client can parse incrementally. Each document is one line:
//
//	0:<json>\n
//
// Safe for use from one goroutine at a time per document; concurrent
// Send calls are serialized.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	log     *logger.Logger
	closed  bool
}

// NewWriter prepares the response for streaming and writes the
// event-stream headers. Returns an error if the response writer cannot
// flush, since buffered output would defeat incremental delivery.
func NewWriter(w http.ResponseWriter, log *logger.Logger) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher, log: log.With("component", "sse_writer")}, nil
}

// Send frames one document and flushes it to the client.
func (s *Writer) Send(doc *protocol.Document) error {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	if _, err := fmt.Fprintf(s.w, "0:%s\n", raw); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream finished. Further sends fail.
func (s *Writer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
