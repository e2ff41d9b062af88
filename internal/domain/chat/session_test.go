package chat

import (
	"strings"
	"testing"

	"gorm.io/datatypes"
)

func TestRepairMessageIDs(t *testing.T) {
	tests := []struct {
		name         string
		messages     []Message
		wantRepaired int
	}{
		{
			name: "unique ids untouched",
			messages: []Message{
				{ID: "msg-1", Role: RoleUser},
				{ID: "msg-2", Role: RoleAssistant},
			},
			wantRepaired: 0,
		},
		{
			name: "missing ids assigned",
			messages: []Message{
				{ID: "", Role: RoleUser},
				{ID: "msg-2", Role: RoleAssistant},
				{ID: "", Role: RoleUser},
			},
			wantRepaired: 2,
		},
		{
			name: "duplicate ids deduplicated",
			messages: []Message{
				{ID: "msg-1", Role: RoleUser},
				{ID: "msg-1", Role: RoleAssistant},
				{ID: "msg-1", Role: RoleUser},
			},
			wantRepaired: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairMessageIDs(tt.messages)
			if got != tt.wantRepaired {
				t.Errorf("repaired = %d, want %d", got, tt.wantRepaired)
			}
			seen := map[string]bool{}
			for i, m := range tt.messages {
				if m.ID == "" {
					t.Errorf("message %d still has no id", i)
				}
				if seen[m.ID] {
					t.Errorf("message %d id %q still duplicated", i, m.ID)
				}
				seen[m.ID] = true
			}
		})
	}
}

func TestRepairKeepsExistingUniqueIDs(t *testing.T) {
	messages := []Message{{ID: "msg-keep", Role: RoleUser}, {ID: "", Role: RoleAssistant}}
	RepairMessageIDs(messages)
	if messages[0].ID != "msg-keep" {
		t.Errorf("existing unique id rewritten to %q", messages[0].ID)
	}
	if !strings.HasPrefix(messages[1].ID, "msg-") {
		t.Errorf("assigned id = %q, want msg- prefix", messages[1].ID)
	}
}

func TestMergeTranscriptStoredWinsByID(t *testing.T) {
	stored := []Message{
		{ID: "msg-1", Role: RoleUser, Content: "stored text"},
		{ID: "msg-2", Role: RoleAssistant, Content: "reply"},
	}
	incoming := []Message{
		{ID: "msg-1", Role: RoleUser, Content: "edited client copy"},
		{ID: "msg-3", Role: RoleUser, Content: "new turn"},
	}

	merged := MergeTranscript(stored, incoming)
	if len(merged) != 3 {
		t.Fatalf("merged length = %d, want 3", len(merged))
	}
	if merged[0].Content != "stored text" {
		t.Errorf("stored message overwritten: %q", merged[0].Content)
	}
	if merged[2].ID != "msg-3" || merged[2].Content != "new turn" {
		t.Errorf("client-only message not appended: %+v", merged[2])
	}
}

func TestLastUserMessage(t *testing.T) {
	messages := []Message{
		{ID: "msg-1", Role: RoleUser, Content: "first"},
		{ID: "msg-2", Role: RoleAssistant, Content: "reply"},
		{ID: "msg-3", Role: RoleUser, Content: "second"},
		{ID: "msg-4", Role: RoleAssistant, Content: "reply two"},
	}
	got := LastUserMessage(messages)
	if got == nil || got.Content != "second" {
		t.Errorf("LastUserMessage = %+v, want the second user turn", got)
	}
	if LastUserMessage(nil) != nil {
		t.Error("LastUserMessage(nil) != nil")
	}
}

func TestDecodeOutputAlwaysHasPlan(t *testing.T) {
	tests := []struct {
		name   string
		output datatypes.JSON
	}{
		{"empty blob", nil},
		{"no plan key", datatypes.JSON(`{"messages":[]}`)},
		{"explicit null plan", datatypes.JSON(`{"messages":[],"lessonPlan":null}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Output: tt.output}
			out, err := s.DecodeOutput()
			if err != nil {
				t.Fatalf("DecodeOutput: %v", err)
			}
			if out.LessonPlan == nil {
				t.Fatal("decoded output has nil lesson plan")
			}
		})
	}
}

func TestEncodeDecodeOutputRoundTrip(t *testing.T) {
	s := &Session{ID: "chat-1"}
	in := &SessionOutput{Messages: []Message{{ID: "msg-1", Role: RoleUser, Content: "hello"}}}
	if err := s.EncodeOutput(in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := s.DecodeOutput()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Content != "hello" {
		t.Errorf("round trip lost transcript: %+v", out.Messages)
	}
}
