package main

import (
	"context"
	"log"
	"os"

	"github.com/prepmind/prepmind-backend/internal/cache"
	"github.com/prepmind/prepmind-backend/internal/db"
	"github.com/prepmind/prepmind-backend/internal/gateway"
	"github.com/prepmind/prepmind-backend/internal/handlers"
	"github.com/prepmind/prepmind-backend/internal/indexer"
	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/middleware"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/server"
	"github.com/prepmind/prepmind-backend/internal/services"
	"github.com/prepmind/prepmind-backend/internal/sse"
	"github.com/prepmind/prepmind-backend/internal/utils"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	appLogger, err := logger.New(logMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	postgresService, err := db.NewPostgresService(appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize Postgres", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		appLogger.Warn("Auto migration failed, continuing with existing schema", "error", err)
	}
	gormDB := postgresService.DB()

	chunkRepo := repos.NewDocumentChunkRepo(gormDB, appLogger)
	indexRepo := repos.NewSubjectIndexRepo(gormDB, appLogger)
	questionRepo := repos.NewQuestionRepo(gormDB, appLogger)
	sessionRepo := repos.NewGenerationSessionRepo(gormDB, appLogger)

	sseHub := sse.NewSSEHub(appLogger)

	gw := gateway.Init(appLogger, gateway.Deps{ChunkRepo: chunkRepo})

	respCache, err := cache.NewFromEnv(appLogger)
	if err != nil {
		appLogger.Warn("Cache provider unavailable, falling back to in-memory", "error", err)
		respCache = cache.NewMemoryCache(appLogger)
	}

	docProvider, err := indexer.NewFSProviderFromEnv(appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load subjects config", "error", err)
	}

	indexService := indexer.NewService(
		gormDB,
		appLogger,
		docProvider,
		gw,
		gw.Store(),
		chunkRepo,
		indexRepo,
		indexer.ResolveConfigFromEnv(appLogger),
	)
	retrievalService := services.NewRetrievalService(
		gormDB,
		appLogger,
		respCache,
		gw,
		gw,
		gw.Store(),
		chunkRepo,
		services.ResolveRetrievalConfigFromEnv(appLogger),
	)
	generationService := services.NewGenerationService(
		gormDB,
		appLogger,
		sseHub,
		sessionRepo,
		questionRepo,
		retrievalService,
		services.ResolveGenerationConfigFromEnv(appLogger),
	)

	if utils.GetEnv("INDEX_ON_STARTUP", "true", appLogger) == "true" {
		go func() {
			if _, err := indexService.IndexAllSubjects(context.Background(), false); err != nil {
				appLogger.Warn("Startup indexing did not complete", "error", err)
			}
		}()
	}

	identity := middleware.NewIdentityMiddleware(appLogger)
	router := server.NewRouter(server.RouterDeps{
		Identity:   identity,
		Generation: handlers.NewGenerationHandler(appLogger, generationService),
		Chat:       handlers.NewChatHandler(appLogger, retrievalService),
		Index:      handlers.NewIndexHandler(appLogger, indexService),
		Gateway:    handlers.NewGatewayHandler(appLogger, gw),
		SSE:        handlers.NewSSEHandler(appLogger, sseHub),
	})

	port := utils.GetEnv("PORT", "8080", appLogger)
	appLogger.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		appLogger.Fatal("Server exited", "error", err)
	}
}
