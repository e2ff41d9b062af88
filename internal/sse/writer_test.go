package sse

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
)

func TestWriterSetsStreamingHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !rec.Flushed {
		t.Error("headers not flushed")
	}
}

func TestWriterFramesDocumentsOnePerLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Send(protocol.NewMessageIDDocument("a-msg-1")); err != nil {
		t.Fatalf("send id: %v", err)
	}
	if err := w.Send(protocol.NewStateDocument("streaming", "")); err != nil {
		t.Fatalf("send state: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), rec.Body.String())
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "0:") {
			t.Fatalf("line %d = %q, want 0: prefix", i, line)
		}
		var doc protocol.Document
		if err := json.Unmarshal([]byte(line[2:]), &doc); err != nil {
			t.Fatalf("line %d is not a document: %v", i, err)
		}
	}
}

func TestWriterSendAfterCloseFails(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.Close()

	if err := w.Send(protocol.NewTextDocument("late")); err == nil {
		t.Error("send after close succeeded")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body written after close: %q", rec.Body.String())
	}
}

// plainWriter deliberately lacks http.Flusher.
type plainWriter struct{ http.ResponseWriter }

func TestWriterRequiresFlusher(t *testing.T) {
	if _, err := NewWriter(plainWriter{httptest.NewRecorder()}, logger.NewNop()); err == nil {
		t.Error("NewWriter accepted a non-flushing response writer")
	}
}

func TestWriterIgnoresNilDocument(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Send(nil); err != nil {
		t.Fatalf("send nil: %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("nil document produced output: %q", rec.Body.String())
	}
}
