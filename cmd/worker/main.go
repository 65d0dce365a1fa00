package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/studyhub-platform/studyindexer/internal/config"
	"github.com/studyhub-platform/studyindexer/internal/database"
	"github.com/studyhub-platform/studyindexer/internal/embedding"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/queue"
	"github.com/studyhub-platform/studyindexer/internal/queue/workers"
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

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	indexingWorker := workers.NewIndexingWorker(idx)
	registry.Register(queue.TypeDocumentIndex, asynq.HandlerFunc(indexingWorker.HandleIndex))
	registry.Register(queue.TypeDocumentReindex, asynq.HandlerFunc(indexingWorker.HandleReindex))
	registry.Register(queue.TypeDocumentDelete, asynq.HandlerFunc(indexingWorker.HandleDelete))

	// Background sweep fails documents stuck in processing, e.g. after a
	// worker crash mid-pipeline.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go runSweeper(sweepCtx, trk, cfg.Indexing.StuckAfter)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("shutting down worker...")
		stopSweep()
		srv.Shutdown()
	}()

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func runSweeper(ctx context.Context, trk tracker.Store, stuckAfter time.Duration) {
	interval := stuckAfter / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := trk.Sweep(ctx, stuckAfter)
			if err != nil {
				slog.Error("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("failed stuck documents", "count", n)
			}
		}
	}
}
