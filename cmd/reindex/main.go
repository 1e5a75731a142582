package main

import (
	"context"
	"flag"

	"github.com/timmy/voicelog/internal/config"
	"github.com/timmy/voicelog/internal/logger"
	"github.com/timmy/voicelog/internal/repository"
	"github.com/timmy/voicelog/internal/service"
)

// reindex rebuilds the vector index from the durable log store. Run it
// after switching embedding models or standing up a fresh Qdrant
// collection.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "voicelog-reindex",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	recreate := flag.Bool("recreate", false, "Ensure the collection exists before indexing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.Embedding.APIKey == "" {
		appLogger.Fatal("Embedding API key is required for reindexing")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	logRepo := repository.NewLogEntryRepository(db)

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

	ctx := context.Background()
	if *recreate {
		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}
	}

	embeddingService := service.NewEmbeddingService(&cfg.Embedding)
	queryService := service.NewQueryService(logRepo, qdrantRepo, embeddingService, &service.QueryConfig{
		ScoreThreshold: cfg.Query.ScoreThreshold,
		TopK:           cfg.Query.TopK,
	})

	indexed, err := queryService.Rebuild(ctx)
	if err != nil {
		appLogger.WithError(err).WithField("indexed", indexed).Fatal("Reindex aborted")
	}

	appLogger.WithField("indexed", indexed).Info("Reindex complete")
}
