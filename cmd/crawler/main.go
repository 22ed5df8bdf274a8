package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"crawler-api/config"
	"crawler-api/internal/chunker"
	"crawler-api/internal/repositories"
	"crawler-api/internal/services"
	"crawler-api/internal/vectorindex"
	"crawler-api/pkg/browser"
	"crawler-api/pkg/embedding"
	"crawler-api/pkg/memorydb"
	"crawler-api/pkg/ocrclient"
	"crawler-api/pkg/pdfrender"
	"crawler-api/pkg/workqueue"
)

const queueName = "crawl"

func main() {
	envPaths := []string{
		"../../.env",
		".env",
	}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg := config.Load()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := repositories.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer mongoClient.Disconnect(context.Background())

	rdb, err := memorydb.Connect(ctx, cfg.RedisURL, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	br, err := browser.Launch(cfg.Worker.BrowserPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to launch browser")
	}
	defer br.Close()

	// Optional vector index; jobs still complete when it is down.
	var index services.VectorIndex
	if cfg.WeaviateEnabled {
		idx, err := vectorindex.New(ctx, cfg.WeaviateScheme, cfg.WeaviateHost, cfg.WeaviatePort)
		if err != nil {
			log.Warn().Err(err).Msg("weaviate unavailable, continuing without vector index")
		} else {
			index = idx
		}
	}

	jobRepo := repositories.NewJobRepository(db)
	resultRepo := repositories.NewResultRepository(db)
	queue := workqueue.New(rdb, queueName, cfg.Queue.LeaseTTL)

	sessions := func(ctx context.Context) (services.BrowserSession, error) {
		return br.NewSession(ctx)
	}

	executor := services.NewExecutor(
		sessions,
		pdfrender.New(cfg.Worker.PdftoppmPath, cfg.Worker.PDFDPI),
		ocrclient.NewClient(cfg.OCRURL),
		embedding.NewClient(cfg.EmbeddingURL),
		chunker.New(cfg.Worker.ChunkSize, cfg.Worker.ChunkOverlap),
		jobRepo,
		resultRepo,
		index,
		cfg.StoragePath,
		cfg.Worker.PageConcurrency,
	)

	worker := services.NewWorker(queue, executor, cfg.Worker.Count, cfg.Worker.JobTimeout)

	log.Info().Int("workers", cfg.Worker.Count).Str("queue", queueName).Msg("crawler starting")
	worker.Run(ctx)
	log.Info().Msg("crawler exited")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.AppEnv != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
