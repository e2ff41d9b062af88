package quizgen

import (
	"context"
	"fmt"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
)

const maxQuizQuestions = 6

// SimpleSelector takes every question from the single highest-rated pool.
// Ties break to the earliest pool, keeping selection deterministic for a
// given generator order.
type SimpleSelector struct{}

func (SimpleSelector) Select(_ context.Context, pools []quiz.Pool, ratings []float64, _ *plan.LessonPlan, _ QuizType) ([]quiz.RagQuizQuestion, error) {
	if len(pools) == 0 {
		return nil, fmt.Errorf("no candidate pools to select from")
	}
	if len(ratings) != len(pools) {
		return nil, fmt.Errorf("ratings length %d does not match pools length %d", len(ratings), len(pools))
	}
	best := 0
	for i, rating := range ratings {
		if rating > ratings[best] {
			best = i
		}
	}
	questions := pools[best].Questions
	if len(questions) > maxQuizQuestions {
		questions = questions[:maxQuizQuestions]
	}
	return questions, nil
}
