package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub-platform/studyindexer/internal/api"
	"github.com/studyhub-platform/studyindexer/internal/config"
	"github.com/studyhub-platform/studyindexer/internal/database"
	"github.com/studyhub-platform/studyindexer/internal/embedding"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/queue"
	"github.com/studyhub-platform/studyindexer/internal/storage"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
	"github.com/studyhub-platform/studyindexer/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	files, err := storage.NewLocalStorage(cfg.Indexing.UploadDir)
	if err != nil {
		slog.Error("upload dir unavailable", "error", err)
		os.Exit(1)
	}

	store := vectorstore.NewPgVectorStore(db)
	trk := tracker.NewRedisStore(rdb, cfg.Indexing.StuckAfter)
	embedder := embedding.NewService(cfg.Embedding)
	idx := indexer.New(store, embedder, trk, files, indexer.ConfigFrom(cfg.Indexing))

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	router := api.NewRouter(db, rdb, cfg, idx, trk, files, queueClient)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
