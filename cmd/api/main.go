package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"crawler-api/config"
	"crawler-api/internal/auth"
	"crawler-api/internal/handlers"
	"crawler-api/internal/middleware"
	"crawler-api/internal/notify"
	"crawler-api/internal/repositories"
	"crawler-api/internal/services"
	"crawler-api/pkg/memorydb"
	"crawler-api/pkg/workqueue"
)

const queueName = "crawl"

func main() {
	// Load .env file
	envPaths := []string{
		"../../.env", // From cmd/api/ to repo root
		".env",       // Current directory
	}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg := config.Load()
	setupLogging(cfg)

	ctx := context.Background()

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

	// Repositories
	jobRepo := repositories.NewJobRepository(db)
	resultRepo := repositories.NewResultRepository(db)

	// Queue and notification fan-out
	queue := workqueue.New(rdb, queueName, cfg.Queue.LeaseTTL)
	hub := notify.NewHub()

	// The bridge is the only writer of job status and progress; it runs for
	// the lifetime of the process.
	bridgeCtx, stopBridge := context.WithCancel(ctx)
	defer stopBridge()
	events, closeSub := queue.Subscribe(bridgeCtx)
	defer closeSub()
	bridge := services.NewBridge(jobRepo, hub)
	go bridge.Run(bridgeCtx, events)

	// Services
	tokenService := auth.NewTokenService(cfg.JWTSecret)
	jobService := services.NewJobService(jobRepo, resultRepo, queue, hub, cfg.Queue.MaxAttempts, cfg.Queue.Backoff)

	// Middleware and handlers
	authMW := middleware.NewAuthMiddleware(tokenService)
	jobHandler := handlers.NewJobHandler(jobService)
	wsHandler := handlers.NewWSHandler(hub)

	router := setupRouter(cfg, jobHandler, wsHandler, authMW)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("api server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
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

func setupRouter(
	cfg *config.Config,
	jobHandler *handlers.JobHandler,
	wsHandler *handlers.WSHandler,
	authMW *middleware.AuthMiddleware,
) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.ErrorMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "crawler-api",
		})
	})

	router.GET("/ws", authMW.RequireAuthForWebsocket(), wsHandler.Connect)

	v1 := router.Group("/api/v1")
	v1.Use(authMW.RequireAuth())
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.Create)
			jobs.GET("", jobHandler.List)
			jobs.GET("/:id", jobHandler.Get)
			jobs.POST("/:id/retry", jobHandler.Retry)
			jobs.DELETE("/:id", jobHandler.Delete)
		}
	}

	return router
}
