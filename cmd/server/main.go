package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bubblefield/backend/internal/admin"
	"github.com/bubblefield/backend/internal/api"
	"github.com/bubblefield/backend/internal/bubble"
	"github.com/bubblefield/backend/internal/catalog"
	"github.com/bubblefield/backend/internal/config"
	"github.com/bubblefield/backend/internal/database"
	"github.com/bubblefield/backend/internal/logging"
	"github.com/bubblefield/backend/internal/migrations"
	"github.com/bubblefield/backend/internal/redis"
	"github.com/bubblefield/backend/internal/ws"
)

func main() {
	// Initialize configuration (loads .env when present)
	cfg := config.Load()

	log, err := logging.Init(cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logging.Sync()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		log.Info("running DB migrations on startup")
		if err := migrations.RunMigrations(cfg.DatabaseURL, migrations.DefaultDir); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Overrides stored in runtime_config win over the environment
	if err := admin.ApplyRuntimeConfigToConfig(db, cfg); err != nil {
		log.Warn("runtime config not applied", zap.Error(err))
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	manager := bubble.InitializeManager(rdb, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := loadCatalog(ctx, db, cfg)
	if err != nil {
		log.Fatal("failed to load catalog", zap.Error(err))
	}
	manager.ReplaceItems(ctx, items)
	log.Info("catalog loaded", zap.Int("categories", len(items)))

	ws.SetRedisClient(rdb)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting bubblefield server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		bubble.StartIdleWorker(gctx, manager, rdb, cfg)
		return nil
	})

	g.Go(func() error {
		return ws.StartEventSubscriber(gctx, func(ctx context.Context) ([]bubble.Item, error) {
			categories, err := catalog.List(ctx, db)
			if err != nil {
				return nil, err
			}
			return catalog.ToItems(categories), nil
		})
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}

	manager.Shutdown()
	log.Info("server stopped")
}

// loadCatalog reads the catalog from the database. An empty table is seeded
// from the YAML file at cfg.CatalogSeedPath first.
func loadCatalog(ctx context.Context, db *sqlx.DB, cfg *config.Config) ([]bubble.Item, error) {
	categories, err := catalog.List(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 && cfg.CatalogSeedPath != "" {
		categories, err = catalog.LoadSeedFile(cfg.CatalogSeedPath)
		if err != nil {
			return nil, err
		}
		if err := catalog.Replace(ctx, db, categories); err != nil {
			return nil, err
		}
		logging.Named("catalog").Info("seeded empty catalog", zap.String("file", cfg.CatalogSeedPath))
	}
	return catalog.ToItems(categories), nil
}
