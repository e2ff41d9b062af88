package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/ctxutil"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/protocol"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/services"

	types "github.com/oaknational/oak-ai-lesson-assistant/internal/domain/chat"
)

type stubGeneration struct {
	docs []*protocol.Document
	err  error
}

func (s *stubGeneration) Stream(_ context.Context, _ services.GenerationRequest, sink services.DocumentSink) error {
	for _, doc := range s.docs {
		if err := sink(doc); err != nil {
			return err
		}
	}
	return s.err
}

type stubChats struct{}

func (stubChats) LoadOrCreate(dbctx.Context, string, string) (*types.Session, *types.SessionOutput, error) {
	return &types.Session{}, &types.SessionOutput{}, nil
}
func (stubChats) SaveOutput(dbctx.Context, *types.Session, *types.SessionOutput) error { return nil }
func (stubChats) ListForUser(dbctx.Context, string, int) ([]*types.Session, error)     { return nil, nil }
func (stubChats) Delete(dbctx.Context, string, string) error                           { return nil }

func generateRequest(t *testing.T, h *ChatHandler, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"chatId":"","messages":[{"id":"","role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req = req.WithContext(ctxutil.WithRequestData(req.Context(), &ctxutil.RequestData{UserID: "user-1"}))
	}
	c.Request = req
	h.Generate(c)
	return rec
}

func streamedDocs(t *testing.T, body string) []*protocol.Document {
	t.Helper()
	var docs []*protocol.Document
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "0:") {
			t.Fatalf("malformed stream line %q", line)
		}
		var doc protocol.Document
		if err := json.Unmarshal([]byte(line[2:]), &doc); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		docs = append(docs, &doc)
	}
	return docs
}

func TestGenerateRejectsAnonymousBeforeStreaming(t *testing.T) {
	h := NewChatHandler(logger.NewNop(), stubChats{}, &stubGeneration{})
	rec := generateRequest(t, h, false)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); strings.Contains(ct, "event-stream") {
		t.Errorf("stream opened for anonymous caller: Content-Type %q", ct)
	}
}

func TestGenerateTerminalDocuments(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   protocol.DocumentType
		wantAction protocol.ActionKind
		inMessage  string
	}{
		{
			name:       "banned user gets account locked action",
			err:        &safety.UserBannedError{UserID: "user-1"},
			wantType:   protocol.DocAction,
			wantAction: protocol.ActionShowAccountLocked,
		},
		{
			name:      "threat detection gets fixed refusal",
			err:       &safety.ThreatDetectionError{UserID: "user-1", ChatID: "c1"},
			wantType:  protocol.DocError,
			inMessage: "I cannot help with that request",
		},
		{
			name:      "rate limit gets retry-after message",
			err:       &services.RateLimitExceededError{UserID: "user-1", Limit: 120, Reset: time.Now().Add(time.Hour)},
			wantType:  protocol.DocError,
			inMessage: "come back in 1 hour",
		},
		{
			name:      "unexpected error gets generic apology",
			err:       context.DeadlineExceeded,
			wantType:  protocol.DocError,
			inMessage: "an error occurred",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewChatHandler(logger.NewNop(), stubChats{}, &stubGeneration{err: tt.err})
			rec := generateRequest(t, h, true)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (errors travel inside the stream)", rec.Code)
			}
			docs := streamedDocs(t, rec.Body.String())
			if len(docs) != 1 {
				t.Fatalf("documents = %d, want the single terminal document", len(docs))
			}
			doc := docs[0]
			if doc.Type != tt.wantType {
				t.Fatalf("document type = %q, want %q", doc.Type, tt.wantType)
			}
			if tt.wantAction != "" && doc.Action != tt.wantAction {
				t.Errorf("action = %q, want %q", doc.Action, tt.wantAction)
			}
			if tt.inMessage != "" && !strings.Contains(doc.Message, tt.inMessage) {
				t.Errorf("message = %q, want it to contain %q", doc.Message, tt.inMessage)
			}
		})
	}
}

func TestGenerateRelaysDocumentsThenReturns(t *testing.T) {
	gen := &stubGeneration{docs: []*protocol.Document{
		protocol.NewMessageIDDocument("a-msg-1"),
		protocol.NewStateDocument("streaming", ""),
		protocol.NewStateDocument("done", ""),
	}}
	h := NewChatHandler(logger.NewNop(), stubChats{}, gen)
	rec := generateRequest(t, h, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	docs := streamedDocs(t, rec.Body.String())
	if len(docs) != 3 {
		t.Fatalf("documents = %d, want 3", len(docs))
	}
	if docs[0].Type != protocol.DocID || docs[2].Type != protocol.DocState {
		t.Errorf("document order wrong: %+v", docs)
	}
}
