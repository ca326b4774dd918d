package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/embedding"
	"github.com/voyagen/channelfold/internal/server"
	"github.com/voyagen/channelfold/internal/service"
	"github.com/voyagen/channelfold/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the channelfold HTTP API.

Sources and channels are stored in Postgres (DATABASE_URL); migrations run
on startup. With REDIS_URL set, reads are cached and catalog syncs are queued
and run by a background worker. With VOYAGE_API_KEY set, channel names are
embedded for semantic search. --memory keeps everything in process instead of
Postgres.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().String("migrations", "migrations", "migrations directory")
	serveCmd.Flags().Bool("memory", false, "use an in-memory store instead of Postgres")
}

func runServe(cmd *cobra.Command, _ []string) error {
	memory, _ := cmd.Flags().GetBool("memory")
	cfg, err := loadConfig(cmd.Flags(), !memory)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort, _ = cmd.Flags().GetString("port")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var appStore store.Store
	if memory {
		log.Warn("using in-memory store; data is lost on exit")
		appStore = store.NewMemory()
	} else {
		dir, _ := cmd.Flags().GetString("migrations")
		pg, err := openPostgres(ctx, cfg, dir, log)
		if err != nil {
			return err
		}
		defer pg.Close()
		appStore = pg
	}

	var embedder *embedding.Client
	if cfg.VoyageAPIKey != "" {
		embedder = embedding.NewClient(cfg.VoyageAPIKey, cfg.VoyageModel, embedding.WithLogger(log))
		log.Info("semantic search enabled", zap.String("model", cfg.VoyageModel))
	} else {
		log.Info("semantic search disabled (VOYAGE_API_KEY not set)")
	}

	var rds *cache.Redis
	if cfg.RedisURL != "" {
		if rds, err = cache.New(cfg.RedisURL); err != nil {
			return err
		}
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		appStore = store.NewCachedStore(appStore, rds, log)
		log.Info("redis connected (caching and sync queue enabled)")
	} else {
		log.Info("redis disabled (REDIS_URL not set)")
	}

	connect := catalogConnector(cfg.Catalog, log)
	if connect == nil {
		log.Info("catalog sync disabled (CATALOG_URL not set)")
	}

	deps := server.Deps{Store: appStore, Config: cfg, Logger: log, Redis: rds, Connect: connect}
	if embedder != nil {
		deps.Embedder = embedder
	}
	srv := server.New(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if rds != nil && connect != nil {
		w := &service.Worker{
			Store:        appStore,
			Redis:        rds,
			Connect:      connect,
			DefaultGroup: cfg.Catalog.DefaultGroup,
			Log:          log,
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}

// openPostgres ensures pgvector, applies migrations and opens the pool.
func openPostgres(ctx context.Context, cfg *config.Config, dir string, log *zap.Logger) (*store.Postgres, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if _, err := os.Stat(abs); err != nil {
		if exe, e := os.Executable(); e == nil {
			abs = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.EnsurePgvector(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+abs, log); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return pg, nil
}
