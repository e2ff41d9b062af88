package quizgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/plan"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/domain/quiz"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// NoopReranker returns no ratings. Used when the selector composes across
// pools itself and pool-level rankings would be ignored anyway.
type NoopReranker struct{}

func (NoopReranker) Rate(_ context.Context, pools []quiz.Pool, _ *plan.LessonPlan, _ QuizType) ([]float64, error) {
	return make([]float64, len(pools)), nil
}

// ReturnFirstReranker rates the first pool 1 and the rest 0. A cheap
// fallback when the scoring model is unavailable.
type ReturnFirstReranker struct{}

func (ReturnFirstReranker) Rate(_ context.Context, pools []quiz.Pool, _ *plan.LessonPlan, _ QuizType) ([]float64, error) {
	ratings := make([]float64, len(pools))
	if len(ratings) > 0 {
		ratings[0] = 1
	}
	return ratings, nil
}

const rerankCacheTTL = 2 * time.Hour

// RatingCache stores pool ratings between runs. Get returns an error on a
// miss.
type RatingCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisRatingCache struct {
	client *redis.Client
}

func NewRedisRatingCache(client *redis.Client) RatingCache {
	return redisRatingCache{client: client}
}

func (c redisRatingCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c redisRatingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// LLMReranker scores each candidate pool for fit against the lesson plan.
// Scores are cached keyed by a hash of the pool content and the plan
// context, since identical pools recur when a user iterates on a lesson.
type LLMReranker struct {
	llm   ObjectCompleter
	cache RatingCache
	log   *logger.Logger
}

// ObjectCompleter produces a single JSON object for a prompt.
type ObjectCompleter interface {
	CompleteObject(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

func NewLLMReranker(llm ObjectCompleter, cache RatingCache, log *logger.Logger) *LLMReranker {
	return &LLMReranker{llm: llm, cache: cache, log: log.With("service", "quiz_reranker")}
}

func (r *LLMReranker) Rate(ctx context.Context, pools []quiz.Pool, p *plan.LessonPlan, quizType QuizType) ([]float64, error) {
	ratings := make([]float64, len(pools))
	for i, pool := range pools {
		rating, err := r.ratePool(ctx, pool, p, quizType)
		if err != nil {
			// Failed scoring leaves the pool at zero rather than failing
			// the whole build.
			r.log.Warn("pool rating failed", "source", string(pool.Source), "error", err.Error())
			continue
		}
		ratings[i] = rating
	}
	return ratings, nil
}

func (r *LLMReranker) ratePool(ctx context.Context, pool quiz.Pool, p *plan.LessonPlan, quizType QuizType) (float64, error) {
	key, err := r.cacheKey(pool, p, quizType)
	if err == nil && r.cache != nil {
		if cached, cerr := r.cache.Get(ctx, key); cerr == nil {
			if rating, perr := strconv.ParseFloat(cached, 64); perr == nil {
				return rating, nil
			}
		}
	}

	rating, err := r.rateWithLLM(ctx, pool, p, quizType)
	if err != nil {
		return 0, err
	}
	if r.cache != nil && key != "" {
		if cerr := r.cache.Set(ctx, key, strconv.FormatFloat(rating, 'f', -1, 64), rerankCacheTTL); cerr != nil {
			r.log.Warn("failed to cache pool rating", "error", cerr.Error())
		}
	}
	return rating, nil
}

func (r *LLMReranker) rateWithLLM(ctx context.Context, pool quiz.Pool, p *plan.LessonPlan, quizType QuizType) (float64, error) {
	raw, err := r.llm.CompleteObject(ctx, rerankSystemPrompt(quizType), rerankUserPrompt(pool, p))
	if err != nil {
		return 0, err
	}
	var out struct {
		Rating        float64 `json:"rating"`
		Justification string  `json:"justification"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode rating: %w", err)
	}
	if out.Rating < 0 || out.Rating > 1 {
		return 0, fmt.Errorf("rating %v out of range", out.Rating)
	}
	return out.Rating, nil
}

func (r *LLMReranker) cacheKey(pool quiz.Pool, p *plan.LessonPlan, quizType QuizType) (string, error) {
	payload, err := json.Marshal(struct {
		Pool     quiz.Pool `json:"pool"`
		Title    string    `json:"title"`
		Subject  string    `json:"subject"`
		KeyStage string    `json:"keyStage"`
		Type     QuizType  `json:"type"`
	}{pool, p.Title, p.Subject, p.KeyStage, quizType})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return "quiz:rerank:" + hex.EncodeToString(sum[:]), nil
}

func rerankSystemPrompt(quizType QuizType) string {
	focus := "the prior knowledge pupils need before the lesson"
	if quizType == ExitQuiz {
		focus = "the key learning points of the lesson"
	}
	return `You are a mathematics education specialist rating a pool of candidate quiz questions for an Oak National Academy lesson plan.
Rate how well the pool as a whole tests ` + focus + `, considering relevance, cognitive range, clarity and answer quality.

Respond with a single JSON object: {"rating": <number between 0 and 1>, "justification": "..."}`
}

func rerankUserPrompt(pool quiz.Pool, p *plan.LessonPlan) string {
	planJSON, _ := json.Marshal(p)
	poolJSON, _ := json.Marshal(pool)
	return "# Lesson plan\n\n" + string(planJSON) + "\n\n# Candidate pool\n\n" + string(poolJSON)
}
