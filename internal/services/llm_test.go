package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

func testClient(baseURL string) *openAIClient {
	return &openAIClient{
		log:        logger.NewNop(),
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "test-model",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: 2,
	}
}

func completionBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func TestCompleteObjectReturnsModelJSON(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, completionBody(`{"ok":true,"count":3}`))
	}))
	defer srv.Close()

	raw, err := testClient(srv.URL).CompleteObject(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("CompleteObject: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	var decoded struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || !decoded.OK || decoded.Count != 3 {
		t.Errorf("returned object = %s (err %v)", raw, err)
	}
}

func TestCompleteObjectRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completionBody(`{"ok":true}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).CompleteObject(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("CompleteObject after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCompleteObjectDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).CompleteObject(context.Background(), "sys", "user"); err == nil {
		t.Fatal("bad request did not surface an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retries on 400", calls)
	}
}

func TestCompleteObjectRejectsNonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, completionBody("here is your lesson plan!"))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).CompleteObject(context.Background(), "sys", "user"); err == nil {
		t.Fatal("prose content accepted as a JSON object")
	}
}

func TestCompleteObjectSurfacesRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","refusal":"cannot comply"}}]}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CompleteObject(context.Background(), "sys", "user")
	if err == nil || !strings.Contains(err.Error(), "cannot comply") {
		t.Fatalf("refusal not surfaced, err = %v", err)
	}
}

func TestStreamCompletionDeliversDeltasInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var got strings.Builder
	err := testClient(srv.URL).StreamCompletion(context.Background(), "sys", "user", func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if got.String() != "Hello world" {
		t.Errorf("assembled = %q", got.String())
	}
}

func TestStreamCompletionStopsWhenCallbackFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"second\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	sinkErr := fmt.Errorf("downstream closed")
	err := testClient(srv.URL).StreamCompletion(context.Background(), "sys", "user", func(chunk string) error {
		chunks = append(chunks, chunk)
		return sinkErr
	})
	if err == nil {
		t.Fatal("callback error swallowed")
	}
	if len(chunks) != 1 {
		t.Errorf("chunks delivered after callback failure = %d, want 1", len(chunks))
	}
}

func TestStreamCompletionNeverRetriesAfterFirstChunk(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		w.(http.Flusher).Flush()
		// Stall past the client timeout without sending [DONE].
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 200 * time.Millisecond}

	var chunks []string
	err := c.StreamCompletion(context.Background(), "sys", "user", func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "stream interrupted") {
		t.Fatalf("err = %v, want a stream interruption", err)
	}
	if calls != 1 {
		t.Errorf("attempts = %d; an interrupted stream must not be retried", calls)
	}
	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Errorf("chunks = %v, want the single delivered delta", chunks)
	}
}

func TestStreamCompletionSkipsMalformedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, ": comment line\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"kept\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var got strings.Builder
	err := testClient(srv.URL).StreamCompletion(context.Background(), "sys", "user", func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if got.String() != "kept" {
		t.Errorf("assembled = %q, want only the well-formed event", got.String())
	}
}
