package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/db"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/handlers"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/middleware"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/observability"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/server"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	srv          *http.Server
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "lesson-assistant",
		Environment: os.Getenv("DEPLOY_ENV"),
		Version:     os.Getenv("RELEASE_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(log, cfg, reposet, rdb)
	if err != nil {
		log.Sync()
		return nil, err
	}

	chatHandler := handlers.NewChatHandler(log, serviceset.Chats, serviceset.Generation)
	authMiddleware := middleware.NewAuthMiddleware(log)
	router := server.NewRouter(server.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		ChatHandler:    chatHandler,
		AuthMiddleware: authMiddleware,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run() error {
	a.srv = &http.Server{
		Addr:    a.Cfg.Addr,
		Handler: a.Router,
	}
	a.Log.Info("Server listening", "addr", a.Cfg.Addr)
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains registered background
// work so in-flight moderation writes and notifications finish.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.srv != nil {
		err = a.srv.Shutdown(ctx)
	}
	if a.Services.Background != nil {
		a.Services.Background.Drain(10 * time.Second)
	}
	if a.otelShutdown != nil {
		if terr := a.otelShutdown(ctx); terr != nil {
			a.Log.Warn("otel shutdown failed", "error", terr.Error())
		}
	}
	a.Log.Sync()
	return err
}
