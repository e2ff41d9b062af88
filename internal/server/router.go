package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/handlers"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
	ChatHandler    *handlers.ChatHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("lesson-assistant"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cleanOrigins(origins),
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	api.POST("/chat", cfg.ChatHandler.Generate)
	api.GET("/chats", cfg.ChatHandler.ListChats)
	api.GET("/chats/:id", cfg.ChatHandler.GetChat)
	api.DELETE("/chats/:id", cfg.ChatHandler.DeleteChat)

	return router
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
