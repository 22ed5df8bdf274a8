package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configurations
	Server ServerConfig

	// MongoDB configurations
	MongoURI string
	MongoDB  string

	// Redis configurations
	RedisURL      string
	RedisUsername string
	RedisPassword string

	// Queue configurations
	Queue QueueConfig

	// Worker configurations
	Worker WorkerConfig

	// External service endpoints
	EmbeddingURL string
	OCRURL       string

	// Weaviate configurations (optional vector index)
	WeaviateEnabled bool
	WeaviateHost    string
	WeaviatePort    string
	WeaviateScheme  string

	// JWT configurations
	JWTSecret string

	// Application configurations
	AppEnv      string
	LogLevel    string
	StoragePath string
}

// ServerConfig holds server-related configurations
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// QueueConfig holds work-queue related configurations
type QueueConfig struct {
	MaxAttempts int
	Backoff     time.Duration // base delay for exponential backoff
	LeaseTTL    time.Duration // redelivery timeout for crashed workers
}

// WorkerConfig holds crawler worker configurations
type WorkerConfig struct {
	Count           int // concurrent job executors
	PageConcurrency int // concurrent PDF pages per job
	ChunkSize       int
	ChunkOverlap    int
	PdftoppmPath    string
	PDFDPI          int
	BrowserPath     string
	JobTimeout      time.Duration // upper bound on a single delivery
}

// Load loads configuration from environment variables
func Load() *Config {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_READ_TIMEOUT", 15)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	viper.SetDefault("SERVER_IDLE_TIMEOUT", 60)
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DB", "crawler")
	viper.SetDefault("QUEUE_MAX_ATTEMPTS", 3)
	viper.SetDefault("QUEUE_BACKOFF_MS", 1000)
	viper.SetDefault("QUEUE_LEASE_TTL_S", 120)
	viper.SetDefault("WORKER_COUNT", 3)
	viper.SetDefault("PAGE_CONCURRENCY", 4)
	viper.SetDefault("CHUNK_SIZE", 1000)
	viper.SetDefault("CHUNK_OVERLAP", 100)
	viper.SetDefault("PDFTOPPM_PATH", "pdftoppm")
	viper.SetDefault("PDF_DPI", 150)
	viper.SetDefault("JOB_TIMEOUT_S", 300)
	viper.SetDefault("EMBEDDING_URL", "http://localhost:4000/embed")
	viper.SetDefault("OCR_URL", "http://localhost:4100/ocr")
	viper.SetDefault("WEAVIATE_ENABLED", false)
	viper.SetDefault("WEAVIATE_HOST", "localhost")
	viper.SetDefault("WEAVIATE_PORT", "8081")
	viper.SetDefault("WEAVIATE_SCHEME", "http")
	viper.SetDefault("JWT_SECRET", "your-super-secret-jwt-key-change-in-production")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORAGE_PATH", "uploads")
	viper.SetDefault("APP_ENV", "development")

	return &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			ReadTimeout:  viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: viper.GetInt("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetInt("SERVER_IDLE_TIMEOUT"),
		},

		MongoURI: viper.GetString("MONGO_URI"),
		MongoDB:  viper.GetString("MONGO_DB"),

		RedisURL:      viper.GetString("REDIS_URL"),
		RedisUsername: viper.GetString("REDIS_USERNAME"),
		RedisPassword: viper.GetString("REDIS_PASSWORD"),

		Queue: QueueConfig{
			MaxAttempts: viper.GetInt("QUEUE_MAX_ATTEMPTS"),
			Backoff:     time.Duration(viper.GetInt("QUEUE_BACKOFF_MS")) * time.Millisecond,
			LeaseTTL:    time.Duration(viper.GetInt("QUEUE_LEASE_TTL_S")) * time.Second,
		},

		Worker: WorkerConfig{
			Count:           viper.GetInt("WORKER_COUNT"),
			PageConcurrency: viper.GetInt("PAGE_CONCURRENCY"),
			ChunkSize:       viper.GetInt("CHUNK_SIZE"),
			ChunkOverlap:    viper.GetInt("CHUNK_OVERLAP"),
			PdftoppmPath:    viper.GetString("PDFTOPPM_PATH"),
			PDFDPI:          viper.GetInt("PDF_DPI"),
			BrowserPath:     viper.GetString("BROWSER_PATH"),
			JobTimeout:      time.Duration(viper.GetInt("JOB_TIMEOUT_S")) * time.Second,
		},

		EmbeddingURL: viper.GetString("EMBEDDING_URL"),
		OCRURL:       viper.GetString("OCR_URL"),

		WeaviateEnabled: viper.GetBool("WEAVIATE_ENABLED"),
		WeaviateHost:    viper.GetString("WEAVIATE_HOST"),
		WeaviatePort:    viper.GetString("WEAVIATE_PORT"),
		WeaviateScheme:  viper.GetString("WEAVIATE_SCHEME"),

		JWTSecret: viper.GetString("JWT_SECRET"),

		AppEnv:      viper.GetString("APP_ENV"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		StoragePath: viper.GetString("STORAGE_PATH"),
	}
}
