package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry of a chat transcript.
type Message struct {
	ID      string      `json:"id"`
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// SessionOutput is the JSON blob persisted per chat: the transcript and
// the current state of the lesson plan.
type SessionOutput struct {
	Messages   []Message        `json:"messages"`
	LessonPlan *plan.LessonPlan `json:"lessonPlan,omitempty"`
}

// Session is the durable record for one chat, keyed by chat id. Output is
// opaque to the store; only the orchestration core reads or writes it, and
// only at run boundaries.
type Session struct {
	ID        string         `gorm:"type:text;primaryKey" json:"id"`
	UserID    string         `gorm:"type:text;not null;index" json:"user_id"`
	Title     string         `gorm:"type:text;not null;default:''" json:"title"`
	Output    datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"output"`
	Iteration int            `gorm:"not null;default:0" json:"iteration"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Session) TableName() string { return "chat_session" }

func (s *Session) DecodeOutput() (*SessionOutput, error) {
	out := &SessionOutput{}
	if len(s.Output) > 0 {
		if err := json.Unmarshal(s.Output, out); err != nil {
			return nil, err
		}
	}
	if out.LessonPlan == nil {
		out.LessonPlan = &plan.LessonPlan{}
	}
	return out, nil
}

func (s *Session) EncodeOutput(out *SessionOutput) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	s.Output = datatypes.JSON(raw)
	return nil
}

// RepairMessageIDs assigns fresh ids to messages with missing or duplicate
// ids, a known migration defect in old transcripts. Messages that already
// carry a unique id keep it. Returns how many ids were rewritten.
func RepairMessageIDs(messages []Message) int {
	seen := make(map[string]bool, len(messages))
	repaired := 0
	for i := range messages {
		id := messages[i].ID
		if id == "" || seen[id] {
			messages[i].ID = NewMessageID()
			repaired++
		}
		seen[messages[i].ID] = true
	}
	return repaired
}

func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// MergeTranscript reconciles the client-sent transcript with the stored
// one: stored messages win by id, client-only messages (typically just the
// new user message) are appended in their client order.
func MergeTranscript(stored, incoming []Message) []Message {
	out := append([]Message(nil), stored...)
	byID := make(map[string]bool, len(stored))
	for _, m := range stored {
		byID[m.ID] = true
	}
	for _, m := range incoming {
		if m.ID != "" && byID[m.ID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// LastUserMessage returns the most recent user turn, or nil.
func LastUserMessage(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return &messages[i]
		}
	}
	return nil
}

// LastAssistantMessage returns the most recent assistant turn, or nil.
func LastAssistantMessage(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return &messages[i]
		}
	}
	return nil
}
