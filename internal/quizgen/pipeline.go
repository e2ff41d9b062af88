package quizgen

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// BuildStatus is the terminal state of one pipeline run.
type BuildStatus string

const (
	// BuildSuccess means a quiz was composed from retrieved candidates.
	BuildSuccess BuildStatus = "success"
	// BuildBail means no acceptable quiz could be built from the
	// candidates; the caller falls back to direct generation.
	BuildBail BuildStatus = "bail"
)

// DisplayQuestion is the presentation form of a composed question, with
// options in their deterministic display order.
type DisplayQuestion struct {
	QuestionUID string   `json:"questionUid"`
	Stem        string   `json:"stem"`
	Options     []Option `json:"options,omitempty"`
	OrderItems  []string `json:"orderItems,omitempty"`
	MatchRight  []string `json:"matchRight,omitempty"`
}

// BuildResult is the pipeline output.
type BuildResult struct {
	Status  BuildStatus
	Quiz    *quiz.Quiz
	Display []DisplayQuestion
}

// Pipeline runs generation, reranking, selection and shuffling for maths
// quizzes. Stages are pluggable so deployments can swap the selection
// strategy without touching the orchestration.
type Pipeline struct {
	generators []Generator
	reranker   Reranker
	selector   Selector
	log        *logger.Logger
}

func NewPipeline(generators []Generator, reranker Reranker, selector Selector, log *logger.Logger) *Pipeline {
	return &Pipeline{
		generators: generators,
		reranker:   reranker,
		selector:   selector,
		log:        log.With("service", "quiz_pipeline"),
	}
}

// BuildQuiz assembles a quiz for the given type. Generators run
// concurrently; a failing generator drops out without sinking the run. A
// failed selection earns one retry before the error propagates.
func (p *Pipeline) BuildQuiz(ctx context.Context, quizType QuizType, lessonPlan *plan.LessonPlan, relevant []RelevantLesson) (*BuildResult, error) {
	if quizType != StarterQuiz && quizType != ExitQuiz {
		return nil, fmt.Errorf("invalid quiz type %q", quizType)
	}

	pools, err := p.buildPools(ctx, quizType, lessonPlan, relevant)
	if err != nil {
		return nil, err
	}
	if quiz.TotalCandidates(pools) == 0 {
		p.log.Warn("no candidate questions generated", "quiz_type", string(quizType), "title", lessonPlan.Title)
		return &BuildResult{Status: BuildBail}, nil
	}

	ratings, err := p.reranker.Rate(ctx, pools, lessonPlan, quizType)
	if err != nil {
		return nil, fmt.Errorf("rerank pools: %w", err)
	}

	selected, err := p.selector.Select(ctx, pools, ratings, lessonPlan, quizType)
	if err != nil {
		p.log.Warn("selection failed, retrying once", "error", err.Error())
		selected, err = p.selector.Select(ctx, pools, ratings, lessonPlan, quizType)
		if err != nil {
			return nil, fmt.Errorf("select questions: %w", err)
		}
	}
	if len(selected) == 0 {
		return &BuildResult{Status: BuildBail}, nil
	}

	return p.assemble(selected)
}

func (p *Pipeline) buildPools(ctx context.Context, quizType QuizType, lessonPlan *plan.LessonPlan, relevant []RelevantLesson) ([]quiz.Pool, error) {
	results := make([][]quiz.Pool, len(p.generators))
	g, gctx := errgroup.WithContext(ctx)
	for i, gen := range p.generators {
		g.Go(func() error {
			pools, err := gen.Generate(gctx, quizType, lessonPlan, relevant)
			if err != nil {
				// Retrieval sources are best-effort; log and move on.
				p.log.Warn("generator failed", "generator", gen.Name(), "error", err.Error())
				return nil
			}
			results[i] = pools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var pools []quiz.Pool
	for _, r := range results {
		pools = append(pools, r...)
	}
	return pools, nil
}

func (p *Pipeline) assemble(selected []quiz.RagQuizQuestion) (*BuildResult, error) {
	built := &quiz.Quiz{Version: "v2"}
	var display []DisplayQuestion
	for _, rq := range selected {
		q := rq.Question
		if q.QuestionUID == "" {
			q.QuestionUID = rq.SourceUID
		}
		built.Questions = append(built.Questions, q)
		built.ImageMetadata = append(built.ImageMetadata, rq.ImageMetadata...)
		display = append(display, displayFor(q))
	}
	if err := built.Validate(); err != nil {
		return nil, fmt.Errorf("assembled quiz invalid: %w", err)
	}
	return &BuildResult{Status: BuildSuccess, Quiz: built, Display: display}, nil
}

func displayFor(q quiz.QuestionV2) DisplayQuestion {
	d := DisplayQuestion{
		QuestionUID: q.QuestionUID,
		Stem:        quiz.StemText(q.QuestionStem),
	}
	switch {
	case q.Answers.MultipleChoice != nil:
		d.Options = ShuffleMultipleChoice(q.Answers.MultipleChoice.Answers, q.Answers.MultipleChoice.Distractors)
	case q.Answers.Order != nil:
		d.OrderItems = ShuffleOrderItems(q.Answers.Order.Items)
	case q.Answers.Match != nil:
		rights := make([]string, len(q.Answers.Match.Pairs))
		for i, pair := range q.Answers.Match.Pairs {
			rights[i] = pair.Right
		}
		d.MatchRight = ShuffleMatchRight(rights)
	}
	return d
}
