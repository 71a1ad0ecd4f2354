package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/activity"
	"inventorypro/backend/internal/cache"
	"inventorypro/backend/internal/config"
	"inventorypro/backend/internal/httpapi"
	"inventorypro/backend/internal/logging"
	"inventorypro/backend/internal/realtime"
	"inventorypro/backend/internal/service"
	"inventorypro/backend/internal/store"
	filestore "inventorypro/backend/internal/store/file"
	"inventorypro/backend/internal/store/memory"
	pgstore "inventorypro/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogFormat == "json" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	docs, closeDocs, err := openDocuments(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("storage unavailable")
	}
	if closeDocs != nil {
		closers = append(closers, closeDocs)
	}
	repo := store.NewRepository(docs)

	viewCache := cache.InventoryViewCache(cache.NoopInventoryViewCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisInventoryViewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			viewCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	activityLog, err := activity.Open(ctx, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("activity log unavailable")
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	hub := realtime.NewHub(cfg.AllowedOrigin)
	go hub.Run(runCtx)

	svc := service.New(repo, activityLog,
		service.WithLocation(cfg.Location()),
		service.WithNotifier(hub),
		service.WithViewCache(viewCache, cfg.PopularityCacheTTL()),
	)
	if _, err := svc.EnsureAdmin(ctx, cfg.SeedAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("seed administrator")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), svc)
	api := httpapi.New(svc, auth, hub, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("driver", cfg.StorageDriver).Msg("inventory backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func openDocuments(ctx context.Context, cfg config.Config) (store.Documents, func() error, error) {
	switch cfg.StorageDriver {
	case "file":
		docs, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", docs.Dir()).Msg("storage: file")
		return docs, nil, nil
	case "memory":
		log.Info().Msg("storage: in-memory demo data")
		return memory.NewSeeded(), nil, nil
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("storage: postgres")
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.StorageDriver {
	case "file", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be file, memory or postgres, got %q", cfg.StorageDriver)
	}
	if cfg.SeedAdminPassword != "" && len(cfg.SeedAdminPassword) < 8 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}
	return nil
}
