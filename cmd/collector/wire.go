package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/adapter/chromedp_fetcher"
	"github.com/user/fetch-pipeline/internal/adapter/extractor"
	"github.com/user/fetch-pipeline/internal/adapter/file"
	"github.com/user/fetch-pipeline/internal/adapter/http_fetcher"
	"github.com/user/fetch-pipeline/internal/adapter/postgres"
	redis_adapter "github.com/user/fetch-pipeline/internal/adapter/redis"
	"github.com/user/fetch-pipeline/internal/adapter/sqlite"
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/internal/usecase"
	"github.com/user/fetch-pipeline/pkg/config"
)

// backend bundles the adapters of one store driver.
type backend struct {
	store   repository.RecordStore
	reader  repository.RecordReader
	targets repository.TargetRepository
	writer  repository.TargetWriter
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite store opened", zap.String("path", cfg.Store.SQLitePath))
		store, targets := sqlite.NewRecordStore(db), sqlite.NewTargetRepo(db)
		return &backend{store: store, reader: store, targets: targets, writer: targets, close: func() { db.Close() }}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Store.PostgresDSN, cfg.Store.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		log.Info("postgres connection pool established")
		store, targets := postgres.NewRecordStore(pool), postgres.NewTargetRepo(pool)
		return &backend{store: store, reader: store, targets: targets, writer: targets, close: pool.Close}, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("unable to connect to redis: %w", err)
		}
		log.Info("redis connection established", zap.String("addr", cfg.Store.RedisAddr))
		store, targets := redis_adapter.NewRecordStore(rdb), redis_adapter.NewTargetList(rdb)
		return &backend{store: store, reader: store, targets: targets, writer: targets, close: func() { rdb.Close() }}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func targetSource(cfg *config.Config, b *backend) repository.TargetRepository {
	if cfg.Targets.Source == "file" {
		return file.NewTargetFile(cfg.Targets.File)
	}
	return b.targets
}

func newFetcher(ctx context.Context, cfg *config.Config, sess entity.Session, ex *extractor.Extractor, log *zap.Logger) (repository.Fetcher, error) {
	switch cfg.Fetcher.Driver {
	case "chromedp":
		f, err := chromedp_fetcher.New(ctx, sess, ex, chromedp_fetcher.Config{
			Headless: cfg.Fetcher.Headless,
			Timeout:  cfg.NavTimeout,
			Ready:    cfg.Extract.Ready,
		}, log)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "http":
		f, err := http_fetcher.New(sess, ex, cfg.Extract.Ready, cfg.NavTimeout, log)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown fetcher driver %q", cfg.Fetcher.Driver)
}

func pipelineConfig(cfg *config.Config) usecase.PipelineConfig {
	return usecase.PipelineConfig{
		QPS:         cfg.QPS,
		Concurrency: cfg.Concurrency,
		MaxWorkers:  cfg.MaxWorkers,
		Retry: usecase.RetryPolicy{
			Attempts:  cfg.Retries,
			BaseDelay: cfg.BaseDelay,
			Factor:    cfg.BackoffFactor,
		},
		Aggregator: usecase.AggregatorConfig{
			BatchSize:     cfg.BatchSize,
			ProgressEvery: cfg.ProgressEvery,
			FlushRetries:  cfg.FlushRetries,
			FlushBackoff:  cfg.FlushBackoff,
			FlushTimeout:  cfg.FlushTimeout,
			DrainGrace:    cfg.DrainGrace,
		},
	}
}
