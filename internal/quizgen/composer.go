package quizgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

const (
	composerMinQuestions = 3
	composerMaxQuestions = 6
)

// Composer selects the final quiz by mixing the best questions across all
// candidate pools, rather than committing to a single pool. The model may
// bail when no combination of candidates would make an acceptable quiz.
type Composer struct {
	llm ObjectCompleter
	log *logger.Logger
}

func NewComposer(llm ObjectCompleter, log *logger.Logger) *Composer {
	return &Composer{llm: llm, log: log.With("service", "quiz_composer")}
}

type compositionResponse struct {
	Status          string `json:"status"`
	OverallStrategy string `json:"overallStrategy,omitempty"`
	Selected        []struct {
		QuestionUID string `json:"questionUid"`
		Reasoning   string `json:"reasoning"`
	} `json:"selectedQuestions,omitempty"`
	Bail *struct {
		Reason string `json:"reason"`
	} `json:"bail,omitempty"`
}

// Select implements Selector. Ratings are ignored: the composer judges
// every candidate itself. With no candidates at all it bails immediately,
// before any model call.
func (c *Composer) Select(ctx context.Context, pools []quiz.Pool, _ []float64, p *plan.LessonPlan, quizType QuizType) ([]quiz.RagQuizQuestion, error) {
	if quiz.TotalCandidates(pools) == 0 {
		c.log.Info("composer bailing, no candidate questions")
		return nil, nil
	}

	raw, err := c.llm.CompleteObject(ctx, composerSystemPrompt(), composerUserPrompt(pools, p, quizType))
	if err != nil {
		return nil, fmt.Errorf("quiz composition: %w", err)
	}
	var resp compositionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode composition response: %w", err)
	}
	if resp.Status == "bail" {
		reason := "unknown reason"
		if resp.Bail != nil && resp.Bail.Reason != "" {
			reason = resp.Bail.Reason
		}
		c.log.Warn("composer bailed", "reason", reason)
		return nil, nil
	}
	if n := len(resp.Selected); n < composerMinQuestions || n > composerMaxQuestions {
		return nil, fmt.Errorf("composer selected %d questions, want %d to %d", n, composerMinQuestions, composerMaxQuestions)
	}

	byUID := quiz.QuestionByUID(pools)
	var selected []quiz.RagQuizQuestion
	seen := map[string]bool{}
	for _, sel := range resp.Selected {
		if seen[sel.QuestionUID] {
			continue
		}
		seen[sel.QuestionUID] = true
		q, ok := byUID[sel.QuestionUID]
		if !ok {
			// The model invented a question. Treat the whole response as
			// invalid so the caller's retry path can ask again.
			return nil, fmt.Errorf("composer selected unknown question %q", sel.QuestionUID)
		}
		selected = append(selected, q)
	}
	if len(selected) < composerMinQuestions {
		return nil, fmt.Errorf("only %d distinct questions selected, want at least %d", len(selected), composerMinQuestions)
	}
	return selected, nil
}

func composerSystemPrompt() string {
	return fmt.Sprintf(`You are a mathematics education specialist selecting quiz questions for Oak National Academy lesson plans.

Select between %d and %d questions from the candidate pools to form the final quiz. An effective quiz has:

1. Relevance: questions address the knowledge the quiz is meant to assess.
2. Cognitive range: a mix of recall, application and analysis appropriate to the lesson objectives.
3. Clarity: questions are clear, unambiguous and focused.
4. Diagnostic value: answers reveal understanding, misconceptions and gaps.
5. Answer quality: correct answers are unambiguous and distractors reflect common misconceptions.

Prefer questions from a user-selected source lesson where one is marked, since the teacher chose it deliberately.

If no combination of the candidates would make an acceptable quiz, respond with {"status": "bail", "bail": {"reason": "..."}}.
Otherwise respond with a single JSON object:
{"status": "success", "overallStrategy": "...", "selectedQuestions": [{"questionUid": "...", "reasoning": "..."}]}`,
		composerMinQuestions, composerMaxQuestions)
}

func composerUserPrompt(pools []quiz.Pool, p *plan.LessonPlan, quizType QuizType) string {
	var b strings.Builder
	if quizType == StarterQuiz {
		b.WriteString("Compose the starter quiz: it assesses the prior knowledge pupils need before this lesson.\n")
		writeList(&b, "Prior knowledge to assess", p.PriorKnowledge)
	} else {
		b.WriteString("Compose the exit quiz: it assesses the key learning points of this lesson.\n")
		writeList(&b, "Key learning points to assess", p.KeyLearningPoints)
	}

	planJSON, _ := json.Marshal(p)
	b.WriteString("\n# Lesson plan\n\n")
	b.Write(planJSON)

	b.WriteString("\n\n# Candidate questions\n")
	for _, pool := range pools {
		b.WriteString("\n## Source: ")
		b.WriteString(string(pool.Source))
		if pool.Source == quiz.PoolSourceBasedOnLesson {
			b.WriteString(" (user-selected source lesson)")
		}
		b.WriteString("\n\n")
		for _, q := range pool.Questions {
			qJSON, _ := json.Marshal(q)
			b.Write(qJSON)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString(":\n")
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}
