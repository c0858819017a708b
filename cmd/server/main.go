package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/logging"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	logger.Info("storefront session service",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	backend := service.NewBackendClient(cfg.Backend)
	logger.Info("backend client initialized", "base_url", cfg.Backend.BaseURL, "timeout", cfg.Backend.Timeout)

	suggestions, err := service.NewSuggestionCache(cfg.Session.SuggestionCacheSize)
	if err != nil {
		return fmt.Errorf("suggestion cache: %w", err)
	}
	interactions := service.NewInteractionLogger(backend, cfg.Backend.Timeout, logger)
	defer interactions.Wait()

	sessions, err := service.NewSessionManager(cfg.Session.MaxSessions, service.SessionDeps{
		Backend:      backend,
		Storage:      storage,
		Suggestions:  suggestions,
		Images:       service.NewImageValidator(cfg.Image),
		Interactions: interactions,
		Products:     service.NewProductService(backend, interactions, logger),
		Clock:        service.SystemClock{},
		Settings: service.SessionSettings{
			PageSize:         cfg.Search.DefaultPageSize,
			Debounce:         cfg.Search.Debounce,
			TrendingLimit:    cfg.Search.TrendingLimit,
			VoiceMaxDuration: cfg.Voice.MaxDuration,
			VoiceMaxBytes:    cfg.Voice.MaxBytes,
			Diversity:        diversityOptions(cfg.Search),
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer sessions.Close()

	logger.Info("services initialized",
		"storage", cfg.Storage.Driver,
		"max_sessions", cfg.Session.MaxSessions)

	gin.SetMode(cfg.Server.GinMode)
	router := handler.NewRouter(handler.RouterOptions{
		Sessions:      sessions,
		Server:        cfg.Server,
		RateLimit:     cfg.RateLimit,
		MaxImageBytes: cfg.Image.MaxBytes,
		Build:         handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Logger:        logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	// open event streams end when their sessions close
	sessions.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// diversityOptions returns nil when no cap is configured
func diversityOptions(cfg config.SearchConfig) *model.DiversityOptions {
	if cfg.MaxPerBrand <= 0 && cfg.MaxPerCategory <= 0 {
		return nil
	}
	return &model.DiversityOptions{
		MaxPerBrand:    max(cfg.MaxPerBrand, 0),
		MaxPerCategory: max(cfg.MaxPerCategory, 0),
	}
}

// openStorage connects the interaction store medium selected by STORAGE_DRIVER
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Storage, error) {
	switch cfg.Storage.Driver {
	case "redis":
		s, err := repository.NewRedisStorage(ctx, cfg.Storage.RedisURL, cfg.Storage.KeyPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis")
		return s, nil
	case "postgres":
		s, err := repository.NewPostgresStorage(ctx,
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
			logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("connected to PostgreSQL database")
		return s, nil
	default:
		logger.Warn("using in-memory storage; carts and wishlists are lost on restart")
		return repository.NewMemoryStorage(), nil
	}
}
