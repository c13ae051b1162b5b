package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/internal/api/handlers"
	"github.com/finsight-ai/backend/internal/cache/redis"
	"github.com/finsight-ai/backend/internal/enrichment"
	"github.com/finsight-ai/backend/internal/ingestion"
	"github.com/finsight-ai/backend/internal/llm"
	"github.com/finsight-ai/backend/internal/metrics"
	"github.com/finsight-ai/backend/internal/middleware/ratelimit"
	"github.com/finsight-ai/backend/internal/middleware/security"
	"github.com/finsight-ai/backend/internal/middleware/validation"
	"github.com/finsight-ai/backend/internal/qa"
	"github.com/finsight-ai/backend/internal/search"
	"github.com/finsight-ai/backend/internal/storage/blob"
	"github.com/finsight-ai/backend/internal/storage/sqlite"
	"github.com/finsight-ai/backend/pkg/config"
	appLogger "github.com/finsight-ai/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FinSight API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	blobStore, err := blob.NewFileStore(cfg.Blob.Path)
	if err != nil {
		appLogger.Fatal("Failed to create blob store", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	processor := ingestion.NewProcessor(sqliteClient, blobStore, llmClient, cfg.Ingestion)

	if cfg.Ingestion.EnrichmentOn {
		enricher := enrichment.NewEnricher(sqliteClient, cfg.Ingestion.EnrichmentChars)

		if cfg.Neo4j.Enabled {
			graph, err := enrichment.NewGraph(
				cfg.Neo4j.URI,
				cfg.Neo4j.Username,
				cfg.Neo4j.Password,
				cfg.Neo4j.Database,
			)
			if err != nil {
				appLogger.Warn("Entity graph unavailable, continuing without it", zap.Error(err))
			} else {
				enricher.SetGraph(graph)
				defer graph.Close(context.Background())
			}
		}

		processor.SetEnricher(enricher)
	}

	searchEngine := search.NewEngine(sqliteClient, cfg.Search)

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, search caching disabled", zap.Error(err))
		} else {
			searchEngine.SetCache(redisClient)
			processor.SetInvalidator(redisClient)
			defer redisClient.Close()
		}
	}

	synthesizer := qa.NewSynthesizer(sqliteClient, searchEngine, llmClient, cfg.QA)

	processor.Start()
	defer processor.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, blobStore, llmClient)
	qaHandler := handlers.NewQaHandler(searchEngine, synthesizer)
	wsHandler := handlers.NewWebSocketHandler(processor)

	api := app.Group("/api/v1")

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Get("/documents/:id/status", documentHandler.GetStatus)
	api.Get("/documents/:id/download", documentHandler.DownloadDocument)
	api.Get("/documents/:id/view", documentHandler.ViewDocument)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)
	api.Post("/documents/:id/reprocess", documentHandler.ReprocessDocument)
	api.Post("/documents/:id/summary", documentHandler.GenerateSummary)
	api.Post("/documents/:id/pages/:page/insight", documentHandler.PageInsight)
	api.Post("/documents/:id/ask", qaHandler.AskDocument)

	api.Post("/search", qaHandler.Search)
	api.Post("/ask", qaHandler.AskCorpus)
	api.Get("/qa/history", qaHandler.History)

	api.Get("/ws/documents/:id/status", websocket.New(wsHandler.HandleStatus))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
