// Package quizgen builds maths starter and exit quizzes through a staged
// pipeline: candidate generation from several retrieval sources, pool
// reranking, question selection and a deterministic answer shuffle.
package quizgen

import (
	"context"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
)

// QuizType selects which quiz the pipeline is building.
type QuizType string

const (
	StarterQuiz QuizType = "/starterQuiz"
	ExitQuiz    QuizType = "/exitQuiz"
)

// RelevantLesson is a lesson the RAG layer considers similar to the one
// being planned.
type RelevantLesson struct {
	LessonPlanID string `json:"lessonPlanId"`
	Title        string `json:"title"`
}

// Generator produces candidate question pools for one retrieval source.
// A generator that finds nothing returns no pools, not an error.
type Generator interface {
	Name() string
	Generate(ctx context.Context, quizType QuizType, p *plan.LessonPlan, relevant []RelevantLesson) ([]quiz.Pool, error)
}

// Reranker scores candidate pools. Ratings align by index with the pools
// it was given; higher is better.
type Reranker interface {
	Rate(ctx context.Context, pools []quiz.Pool, p *plan.LessonPlan, quizType QuizType) ([]float64, error)
}

// Selector picks the final questions given the pools and their ratings.
type Selector interface {
	Select(ctx context.Context, pools []quiz.Pool, ratings []float64, p *plan.LessonPlan, quizType QuizType) ([]quiz.RagQuizQuestion, error)
}
