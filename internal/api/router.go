package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/studyhub-platform/studyindexer/internal/api/handlers"
	"github.com/studyhub-platform/studyindexer/internal/api/middleware"
	"github.com/studyhub-platform/studyindexer/internal/auth"
	"github.com/studyhub-platform/studyindexer/internal/config"
	"github.com/studyhub-platform/studyindexer/internal/indexer"
	"github.com/studyhub-platform/studyindexer/internal/queue"
	"github.com/studyhub-platform/studyindexer/internal/storage"
	"github.com/studyhub-platform/studyindexer/internal/tracker"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware

	idx   *indexer.Indexer
	trk   tracker.Store
	files storage.Storage
	queue *queue.Client
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config,
	idx *indexer.Indexer, trk tracker.Store, files storage.Storage, qc *queue.Client) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		idx:   idx,
		trk:   trk,
		files: files,
		queue: qc,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	docH := handlers.NewDocumentHandler(rt.idx, rt.trk, rt.queue, rt.cfg.Indexing.MaxUploadSize)
	searchH := handlers.NewSearchHandler(rt.idx)
	personalH := handlers.NewPersonalHandler(rt.idx, rt.trk)
	adminH := handlers.NewAdminHandler(rt.trk, rt.files, rt.queue)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/status", docH.Status)
			r.Patch("/{id}", docH.UpdateMetadata)
			r.Post("/{id}/reindex", docH.Reindex)
			r.Delete("/{id}", docH.Delete)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/", searchH.Search)
			r.Get("/similar/{id}", searchH.Similar)
		})

		r.Route("/personal", func(r chi.Router) {
			r.Get("/documents", personalH.ListDocuments)
			r.Get("/folders", personalH.Folders)
			r.Patch("/documents/{id}/metadata", personalH.UpdateMetadata)
			r.Get("/documents/{id}/related", personalH.Related)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Get("/documents", adminH.Documents)
			r.Get("/stats", adminH.Stats)
			r.Post("/reindex", adminH.Reindex)
		})
	})

	return r
}
