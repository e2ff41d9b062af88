package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// ModerationResult is the scored judgement for one generated lesson state.
type ModerationResult struct {
	Scores        *Scores  `json:"scores,omitempty"`
	Categories    []string `json:"categories"`
	Justification string   `json:"justification,omitempty"`
}

// IsSafe reports a fully compliant result: no flagged categories.
func (r *ModerationResult) IsSafe() bool {
	return len(r.Categories) == 0
}

// IsToxic reports whether any toxic-group category was flagged. Toxic
// content blocks the response outright instead of showing a guidance
// notice.
func (r *ModerationResult) IsToxic() bool {
	for _, c := range r.Categories {
		if strings.HasPrefix(c, "t/") {
			return true
		}
	}
	return false
}

// Moderation is the persisted moderation record.
type Moderation struct {
	ID            string         `gorm:"type:text;primaryKey" json:"id"`
	SessionID     string         `gorm:"type:text;not null;index" json:"session_id"`
	UserID        string         `gorm:"type:text;not null;index" json:"user_id"`
	MessageID     string         `gorm:"type:text" json:"message_id"`
	Categories    datatypes.JSON `gorm:"type:jsonb" json:"categories"`
	Scores        datatypes.JSON `gorm:"type:jsonb" json:"scores"`
	Justification string         `gorm:"type:text" json:"justification"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Moderation) TableName() string { return "moderation" }

// ObjectCompleter produces a single JSON object for a prompt.
type ObjectCompleter interface {
	CompleteObject(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

// Moderator scores lesson content against the content guidelines.
type Moderator struct {
	llm ObjectCompleter
	log *logger.Logger
}

func NewModerator(llm ObjectCompleter, log *logger.Logger) *Moderator {
	return &Moderator{llm: llm, log: log.With("service", "moderator")}
}

// Moderate scores the given lesson content. A response that cannot be
// parsed earns one retry; if the retry also fails the result fails closed
// with the lowest toxic score so the caller blocks the content.
func (m *Moderator) Moderate(ctx context.Context, content string) (*ModerationResult, error) {
	result, err := m.moderateOnce(ctx, content)
	if err == nil {
		return result, nil
	}
	m.log.Warn("failed to parse moderation response, retrying", "error", err.Error())
	result, err = m.moderateOnce(ctx, content)
	if err == nil {
		return result, nil
	}
	m.log.Error("moderation response unparseable after retry", "error", err.Error())
	return &ModerationResult{
		Scores:        &Scores{L: scoreMin, V: scoreMin, U: scoreMin, S: scoreMin, P: scoreMin, T: scoreMin},
		Categories:    allCategoryCodes(),
		Justification: "Failed to parse moderation response",
	}, nil
}

func (m *Moderator) moderateOnce(ctx context.Context, content string) (*ModerationResult, error) {
	raw, err := m.llm.CompleteObject(ctx, moderationSystemPrompt(), moderationUserPrompt(content))
	if err != nil {
		return nil, err
	}
	var result ModerationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode moderation response: %w", err)
	}
	if err := validateResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateResult(r *ModerationResult) error {
	if r.Scores == nil {
		return fmt.Errorf("moderation response has no scores")
	}
	for prefix, score := range map[string]int{
		"l": r.Scores.L, "v": r.Scores.V, "u": r.Scores.U,
		"s": r.Scores.S, "p": r.Scores.P, "t": r.Scores.T,
	} {
		if score < scoreMin || score > ScoreCompliant {
			return fmt.Errorf("score for group %q out of range: %d", prefix, score)
		}
	}
	if r.Categories == nil {
		r.Categories = []string{}
	}
	for _, code := range r.Categories {
		if !ValidCategoryCode(code) {
			return fmt.Errorf("unknown category code %q", code)
		}
	}
	return nil
}

func allCategoryCodes() []string {
	var out []string
	for _, g := range CategoryGroups {
		for _, c := range g.Categories {
			out = append(out, c.Code)
		}
	}
	return out
}

func moderationSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a content moderation assessor for Oak National Academy. You rate lesson plan content against the content guidelines so that teachers can be warned about material needing adaptation or supervision.

Rate the content against each category group on a scale of 1 to 5, where 5 is fully compliant and 1 is severely non-compliant. For any group scoring below 5, list the specific category codes that apply.

`)
	for _, g := range CategoryGroups {
		b.WriteString("# ")
		b.WriteString(g.Title)
		b.WriteString(" (")
		b.WriteString(g.CodePrefix)
		b.WriteString(")\n\n5 ")
		b.WriteString(g.Criteria5)
		b.WriteString("\n1 ")
		b.WriteString(g.Criteria1)
		b.WriteString("\n")
		if g.Note != "" {
			b.WriteString("Note: ")
			b.WriteString(g.Note)
			b.WriteString("\n")
		}
		b.WriteString("\nCategories:\n")
		for _, c := range g.Categories {
			b.WriteString("- ")
			b.WriteString(c.Code)
			b.WriteString(": ")
			b.WriteString(c.LLMDescription)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(`# Response format

Respond with a single JSON object:
{"scores": {"l": 5, "v": 5, "u": 5, "s": 5, "p": 5, "t": 5}, "categories": [], "justification": "..."}

The justification briefly explains every score below 5.`)
	return b.String()
}

func moderationUserPrompt(content string) string {
	return "Moderate the following lesson content:\n\n" + content
}
