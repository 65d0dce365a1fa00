package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Embedding EmbeddingConfig
	Indexing  IndexingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type EmbeddingConfig struct {
	OpenAIKey string
	Model     string
	Device    string // "cpu" or "cuda"; only meaningful for local backends
}

type IndexingConfig struct {
	MaxChunkSize       int
	ChunkOverlap       int
	MaxUploadSize      int64
	SupportedFileTypes []string // MIME allow-list
	UploadDir          string
	DefaultCollection  string
	StuckAfter         time.Duration
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	chunkSize, err := getEnvInt("MAX_CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_OVERLAP: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_SIZE", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}

	stuckAfter, err := getEnvDuration("INDEXING_STUCK_AFTER", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid INDEXING_STUCK_AFTER: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Embedding: EmbeddingConfig{
			OpenAIKey: getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Device:    getEnv("EMBEDDING_DEVICE", "cpu"),
		},
		Indexing: IndexingConfig{
			MaxChunkSize:  chunkSize,
			ChunkOverlap:  chunkOverlap,
			MaxUploadSize: int64(maxUpload),
			SupportedFileTypes: splitCSV(getEnv("SUPPORTED_FILE_TYPES",
				"text/plain,text/markdown,application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document")),
			UploadDir:         getEnv("UPLOAD_DIR", "data/uploads"),
			DefaultCollection: getEnv("DEFAULT_COLLECTION", "general"),
			StuckAfter:        stuckAfter,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Embedding.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if d := c.Embedding.Device; d != "cpu" && d != "cuda" {
		return fmt.Errorf("EMBEDDING_DEVICE must be cpu or cuda, got %q", d)
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)",
			c.Indexing.ChunkOverlap, c.Indexing.MaxChunkSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
