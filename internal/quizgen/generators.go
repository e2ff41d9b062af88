package quizgen

import (
	"context"
	"fmt"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

const semanticSearchLimit = 10

// CurrentQuizGenerator offers the questions already on the plan as a
// candidate pool, so regeneration can keep questions that still fit.
type CurrentQuizGenerator struct{}

func (CurrentQuizGenerator) Name() string { return "currentQuiz" }

func (CurrentQuizGenerator) Generate(_ context.Context, quizType QuizType, p *plan.LessonPlan, _ []RelevantLesson) ([]quiz.Pool, error) {
	var current *quiz.Quiz
	switch quizType {
	case StarterQuiz:
		current = p.StarterQuiz
	case ExitQuiz:
		current = p.ExitQuiz
	default:
		return nil, fmt.Errorf("invalid quiz type %q", quizType)
	}
	if current == nil || len(current.Questions) == 0 {
		return nil, nil
	}
	pool := quiz.Pool{Source: quiz.PoolSourceCurrentQuiz}
	for i, q := range current.Questions {
		rq := quiz.RagQuizQuestion{
			SourceUID: q.QuestionUID,
			Question:  q,
		}
		if rq.SourceUID == "" {
			rq.SourceUID = fmt.Sprintf("current-%d", i+1)
			rq.Question.QuestionUID = rq.SourceUID
		}
		pool.Questions = append(pool.Questions, rq)
	}
	return []quiz.Pool{pool}, nil
}

// BasedOnGenerator pulls the published questions of the lesson the user
// chose to base their plan on. High signal: the teacher explicitly picked
// this lesson.
type BasedOnGenerator struct {
	search QuestionSearch
}

func NewBasedOnGenerator(search QuestionSearch) *BasedOnGenerator {
	return &BasedOnGenerator{search: search}
}

func (*BasedOnGenerator) Name() string { return "basedOnLesson" }

func (g *BasedOnGenerator) Generate(ctx context.Context, _ QuizType, p *plan.LessonPlan, _ []RelevantLesson) ([]quiz.Pool, error) {
	if p.BasedOn == nil || p.BasedOn.ID == "" {
		return nil, nil
	}
	questions, err := g.search.ByLessonSlugs(ctx, []string{p.BasedOn.ID})
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return []quiz.Pool{{Source: quiz.PoolSourceBasedOnLesson, Questions: questions}}, nil
}

// SimilarLessonsGenerator retrieves questions from the lessons the RAG
// layer matched to this plan.
type SimilarLessonsGenerator struct {
	search QuestionSearch
}

func NewSimilarLessonsGenerator(search QuestionSearch) *SimilarLessonsGenerator {
	return &SimilarLessonsGenerator{search: search}
}

func (*SimilarLessonsGenerator) Name() string { return "similarLessons" }

func (g *SimilarLessonsGenerator) Generate(ctx context.Context, _ QuizType, _ *plan.LessonPlan, relevant []RelevantLesson) ([]quiz.Pool, error) {
	if len(relevant) == 0 {
		return nil, nil
	}
	slugs := make([]string, 0, len(relevant))
	for _, lesson := range relevant {
		if lesson.LessonPlanID != "" {
			slugs = append(slugs, lesson.LessonPlanID)
		}
	}
	questions, err := g.search.ByLessonSlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}
	return []quiz.Pool{{Source: quiz.PoolSourceSimilarLessons, Questions: questions}}, nil
}

// SemanticSearchGenerator queries the question index once per knowledge
// term: prior knowledge for starter quizzes, key learning points for exit
// quizzes. One pool per term that yields results.
type SemanticSearchGenerator struct {
	search QuestionSearch
	log    *logger.Logger
}

func NewSemanticSearchGenerator(search QuestionSearch, log *logger.Logger) *SemanticSearchGenerator {
	return &SemanticSearchGenerator{search: search, log: log.With("service", "semantic_quiz_generator")}
}

func (*SemanticSearchGenerator) Name() string { return "semanticSearch" }

func (g *SemanticSearchGenerator) Generate(ctx context.Context, quizType QuizType, p *plan.LessonPlan, _ []RelevantLesson) ([]quiz.Pool, error) {
	var terms []string
	switch quizType {
	case StarterQuiz:
		terms = p.PriorKnowledge
	case ExitQuiz:
		terms = p.KeyLearningPoints
	default:
		return nil, fmt.Errorf("invalid quiz type %q", quizType)
	}
	var pools []quiz.Pool
	for _, term := range terms {
		questions, err := g.search.Semantic(ctx, term, semanticSearchLimit)
		if err != nil {
			// A single failed term does not sink the other pools.
			g.log.Warn("semantic search failed for term", "error", err.Error())
			continue
		}
		if len(questions) == 0 {
			continue
		}
		pools = append(pools, quiz.Pool{Source: quiz.PoolSourceSemanticSearch, Questions: questions})
	}
	return pools, nil
}
