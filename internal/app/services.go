package app

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/agents"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/background"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/bans"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/moderations"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/session"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/data/repos/violations"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/plugins"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/quizgen"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/services"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

type Repos struct {
	Sessions    session.SessionRepo
	Violations  safety.ViolationStore
	Bans        safety.UserBans
	Moderations moderations.ModerationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Sessions:    session.NewSessionRepo(db, log),
		Violations:  violations.NewViolationRepo(db, log),
		Bans:        bans.NewBanRepo(db, log),
		Moderations: moderations.NewModerationRepo(db, log),
	}
}

type Services struct {
	Chats      services.ChatService
	Generation services.GenerationService
	Background *background.Registry
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, rdb *redis.Client) (Services, error) {
	llm, err := services.NewOpenAIClient(log)
	if err != nil {
		return Services{}, err
	}

	chats := services.NewChatService(log, repos.Sessions)
	limiter := services.NewRateLimiter(log, rdb)
	runner := agents.NewRunner(llm, log)

	violationsSvc := safety.NewViolations(repos.Violations, repos.Bans, safety.NewWebhookNotifier(log), log)
	moderator := safety.NewModerator(llm, log)
	threat := safety.NewHTTPThreatDetector(log)

	search := quizgen.NewHTTPQuestionSearch(log)
	var ratings quizgen.RatingCache
	if rdb != nil {
		ratings = quizgen.NewRedisRatingCache(rdb)
	}
	strategy := utils.GetEnv("QUIZ_SELECTION_STRATEGY", "compose", log)
	reranker, selector := quizSelection(strategy, llm, ratings, log)
	quizzes := quizgen.NewPipeline(
		[]quizgen.Generator{
			quizgen.CurrentQuizGenerator{},
			quizgen.NewBasedOnGenerator(search),
			quizgen.NewSimilarLessonsGenerator(search),
			quizgen.NewSemanticSearchGenerator(search, log),
		},
		reranker,
		selector,
		log,
	)

	registry := background.NewRegistry(log)
	plugin := &corePlugin{registry: registry}

	gen := services.NewGenerationService(
		log, chats, limiter, llm, runner,
		violationsSvc, moderator, threat,
		repos.Moderations, quizzes, plugin,
	)

	return Services{
		Chats:      chats,
		Generation: gen,
		Background: registry,
	}, nil
}

// quizSelection maps the configured strategy to pipeline stages. The
// default composes across pools in one model call; "rerank" scores pools
// individually and takes the best whole pool.
func quizSelection(strategy string, llm services.LLMClient, ratings quizgen.RatingCache, log *logger.Logger) (quizgen.Reranker, quizgen.Selector) {
	if strategy == "rerank" {
		return quizgen.NewLLMReranker(llm, ratings, log), quizgen.SimpleSelector{}
	}
	if strategy != "compose" {
		log.Warn("unknown quiz selection strategy, composing", "strategy", strategy)
	}
	return quizgen.NoopReranker{}, quizgen.NewComposer(llm, log)
}

// corePlugin routes background work into the supervised registry and
// leaves the other hooks as no-ops.
type corePlugin struct {
	plugins.NoopPlugin
	registry *background.Registry
}

func (p *corePlugin) OnBackgroundWork(name string, fn func(ctx context.Context) error) {
	p.registry.Register(name, fn)
}
