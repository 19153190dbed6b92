package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tokobill/backend/internal/analytics"
	"tokobill/backend/internal/config"
	"tokobill/backend/internal/httpapi"
	"tokobill/backend/internal/logging"
	"tokobill/backend/internal/metrics"
	"tokobill/backend/internal/sequence"
	"tokobill/backend/internal/service"
	"tokobill/backend/internal/store"
	"tokobill/backend/internal/store/memory"
	mongostore "tokobill/backend/internal/store/mongo"
	pgstore "tokobill/backend/internal/store/postgres"
)

func main() {
	envLoaded, envErr := config.LoadEnvFile(".env")
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("invalid logging configuration: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if envErr != nil {
		logger.Warn("ignoring .env file", zap.Error(envErr))
	} else if envLoaded {
		logger.Info("loaded .env file")
	}
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store unavailable; refusing to start", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	m := metrics.New()
	var counter sequence.Counter = repo
	var redisCounter *sequence.RedisCounter
	if cfg.SequenceDriver == config.SequenceRedis {
		redisCounter = sequence.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(ctx); err != nil {
			// Falling back to another counter could reissue numbers.
			logger.Fatal("redis sequence counter unavailable", zap.Error(err))
		}
		counter = redisCounter
		closers = append(closers, redisCounter.Close)
	}
	logger.Info("sequence counter",
		zap.String("driver", cfg.SequenceDriver),
		zap.String("name", cfg.SequenceName),
		zap.Int64("start", cfg.SequenceStart),
	)

	generator := sequence.NewGenerator(counter, cfg.SequenceName, cfg.SequenceStart)
	engine := analytics.NewEngine(repo, cfg.AnalyticsStrategy, location, logger, m)
	logger.Info("analytics engine", zap.String("strategy", engine.Strategy()), zap.String("timezone", location.String()))

	svc := service.New(repo, generator, engine, logger, m, cfg.BillListLimit)
	if redisCounter != nil {
		svc.AddReadinessCheck("redis", redisCounter)
	}
	api := httpapi.New(svc, logger, m, cfg.AllowedOrigin, cfg.RateLimitPerMinute)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      70 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	closers := make([]func() error, 0, 2)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, append(closers, pg.Close), nil
	case config.StoreMongo:
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if err := mg.Migrate(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("migrate mongo: %w", err)
		}
		logger.Info("repository: mongo", zap.String("database", cfg.MongoDatabase))
		return mg, append(closers, mg.Close), nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), closers, nil
	}
}

func validateConfig(cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreMemory:
	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres store")
		}
	case config.StoreMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set for the mongo store")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.SequenceDriver {
	case config.SequenceStore:
	case config.SequenceRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set for the redis sequence counter")
		}
	default:
		return fmt.Errorf("unsupported SEQUENCE_DRIVER %q", cfg.SequenceDriver)
	}

	if cfg.SequenceStart < 1 {
		return fmt.Errorf("SEQUENCE_START must be a positive integer")
	}
	if cfg.BillListLimit > store.DefaultBillLimit*10 {
		return fmt.Errorf("BILL_LIST_LIMIT must not exceed %d", store.DefaultBillLimit*10)
	}
	if cfg.SequenceName == "" {
		return fmt.Errorf("SEQUENCE_NAME must not be empty")
	}
	if cfg.AnalyticsStrategy != analytics.StrategyNative && cfg.AnalyticsStrategy != analytics.StrategyMemory {
		return fmt.Errorf("unsupported ANALYTICS_STRATEGY %q", cfg.AnalyticsStrategy)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}
