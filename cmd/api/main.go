package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/voicelog/internal/api"
	"github.com/timmy/voicelog/internal/api/middleware"
	"github.com/timmy/voicelog/internal/config"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/repository"
	"github.com/timmy/voicelog/internal/service"
	"github.com/timmy/voicelog/internal/storage"
)

func main() {
	// Initialize logger first so config errors are reported consistently
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	logRepo := repository.NewLogEntryRepository(db)

	ctx := context.Background()

	// Vector index is optional: without embedding credentials the query
	// path falls back to lexical scoring.
	var vectorIndex service.VectorIndex
	var embeddingService service.EmbeddingProvider
	if cfg.Embedding.APIKey != "" {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
		}
		defer qdrantRepo.Close()

		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}

		vectorIndex = qdrantRepo
		embeddingService = service.NewEmbeddingService(&cfg.Embedding)
	} else {
		appLogger.Warn("No embedding API key configured, queries use lexical matching only")
	}

	// Initialize storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize services
	transcriptionClient := service.NewTranscriptionClient(&cfg.ASR)
	summaryClient := service.NewSummaryClient(&cfg.Summary)

	queryService := service.NewQueryService(logRepo, vectorIndex, embeddingService, &service.QueryConfig{
		ScoreThreshold: cfg.Query.ScoreThreshold,
		TopK:           cfg.Query.TopK,
	})

	scheduler := service.NewJobScheduler(
		objectStorage,
		transcriptionClient,
		summaryClient,
		logRepo,
		queryService,
		&service.SchedulerOptions{
			MaxActiveJobs:      cfg.Scheduler.MaxActiveJobs,
			PollInitial:        cfg.Scheduler.PollInitial,
			PollMax:            cfg.Scheduler.PollMax,
			PollBudget:         cfg.Scheduler.PollBudget,
			PresignExpiry:      cfg.Storage.PresignExpiry,
			DefaultSummaryType: cfg.Summary.DefaultType,
		},
	)

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Scheduler:    scheduler,
		QueryService: queryService,
		Summarizer:   summaryClient,
		LogRepo:      logRepo,
		Logger:       appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Let running pipelines finish their current stage
	scheduler.Wait()

	appLogger.Info("Server exited")
}
