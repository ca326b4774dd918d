package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/fetcher"
	"github.com/voyagen/channelfold/internal/logging"
	"github.com/voyagen/channelfold/internal/service"
	"github.com/voyagen/channelfold/internal/store"
)

// Embedder embeds stored channels and search queries.
type Embedder interface {
	service.Embedder
	Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error)
}

// Deps are the Server's collaborators. Store and Config are required.
type Deps struct {
	Store    store.Store
	Config   *config.Config
	Logger   *zap.Logger
	Embedder Embedder            // nil when VOYAGE_API_KEY is not set
	Redis    *cache.Redis        // nil when REDIS_URL is not set; syncs then run inline
	Connect  service.ConnectFunc // nil when no catalog is configured
	NewID    consolidate.IDFunc  // optional; uuid by default
}

// Server holds dependencies for the HTTP API.
type Server struct {
	store    store.Store
	cfg      *config.Config
	log      *zap.Logger
	embedder Embedder
	redis    *cache.Redis
	connect  service.ConnectFunc
	newID    consolidate.IDFunc
	router   chi.Router
}

// New creates a Server and registers routes.
func New(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		store:    d.Store,
		cfg:      d.Config,
		log:      log.Named("server"),
		embedder: d.Embedder,
		redis:    d.Redis,
		connect:  d.Connect,
		newID:    d.NewID,
		router:   chi.NewRouter(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(logging.Middleware(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(withCORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/preview", s.handlePreview)

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleAddSource)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSource)
				r.Patch("/", s.handleUpdateSource)
				r.Delete("/", s.handleDeleteSource)
				r.Post("/refresh", s.handleRefreshSource)
				r.Post("/cleanup-names", s.handleCleanupNames)
				r.Get("/playlist.m3u", s.handleExportPlaylist)
				r.Post("/sync", s.handleSyncSource)
			})
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Get("/search", s.handleSearchChannels)
			r.Post("/selection", s.handleSetSelection)
			r.Get("/{id}", s.handleGetChannel)
			r.Patch("/{id}", s.handleUpdateChannel)
		})

		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/docs", handleSwaggerUI)
		r.Get("/docs/openapi.yaml", handleOpenAPISpec)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown", zap.Error(err))
		}
	}()

	s.log.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) fetchOptions(userAgent string) fetcher.FetchOptions {
	if userAgent == "" {
		userAgent = s.cfg.UserAgent
	}
	return fetcher.FetchOptions{UserAgent: userAgent, Timeout: s.cfg.Timeout, Logger: s.log}
}

func (s *Server) ingestOptions(name string) service.IngestOptions {
	opts := service.IngestOptions{
		SourceName: name,
		Fetch:      s.fetchOptions(""),
		Logger:     s.log,
		NewID:      s.newID,
	}
	if s.embedder != nil {
		opts.Embedder = s.embedder
	}
	if s.redis != nil {
		opts.Locker = s.redis
		opts.LockKey = cache.SourceLockKey
	}
	return opts
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()); err != nil {
			status["redis"] = "unavailable"
		} else {
			status["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}
