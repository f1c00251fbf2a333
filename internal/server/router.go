package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prepmind/prepmind-backend/internal/handlers"
	"github.com/prepmind/prepmind-backend/internal/middleware"
)

type RouterDeps struct {
	Identity   *middleware.IdentityMiddleware
	Generation *handlers.GenerationHandler
	Chat       *handlers.ChatHandler
	Index      *handlers.IndexHandler
	Gateway    *handlers.GatewayHandler
	SSE        *handlers.SSEHandler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(deps.Identity.RequireUser())
	{
		api.POST("/generations", deps.Generation.Start)
		api.GET("/generations/:id", deps.Generation.GetProgress)
		api.POST("/generations/:id/cancel", deps.Generation.Cancel)
		api.POST("/generations/:id/retry", deps.Generation.Retry)
		api.GET("/generations/:id/questions", deps.Generation.Questions)

		api.POST("/chat", deps.Chat.Chat)
		api.POST("/search", deps.Chat.Search)
		api.POST("/cache/clear", deps.Chat.ClearCache)

		api.POST("/subjects/reindex", deps.Index.ReindexAll)
		api.POST("/subjects/:subject/reindex", deps.Index.Reindex)
		api.GET("/subjects/index-status", deps.Index.Status)

		api.GET("/gateway/health", deps.Gateway.Health)
	}

	stream := router.Group("/sse")
	stream.Use(deps.Identity.RequireUser())
	{
		stream.GET("/stream", deps.SSE.Stream)
	}

	return router
}
