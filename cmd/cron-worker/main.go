package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/cron"
	"github.com/angelmondragon/adboard-backend/internal/vectorindex"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	"github.com/angelmondragon/adboard-backend/pkg/db"
	"github.com/angelmondragon/adboard-backend/pkg/instance"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/metrics"
	"github.com/angelmondragon/adboard-backend/pkg/migrate"
	"github.com/angelmondragon/adboard-backend/pkg/redis"
	"github.com/angelmondragon/adboard-backend/pkg/vectorize"
	"github.com/angelmondragon/adboard-backend/pkg/workersai"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ai, err := workersai.NewClient(cfg.AI.AccountID, cfg.AI.APIToken,
		workersai.WithBaseURL(cfg.AI.BaseURL),
		workersai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		workersai.WithTimeout(cfg.AI.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create workers ai client", err)
		os.Exit(1)
	}
	vectors, err := vectorize.NewClient(cfg.AI.AccountID, cfg.AI.APIToken, cfg.Vectorize.IndexName,
		vectorize.WithBaseURL(cfg.Vectorize.BaseURL),
		vectorize.WithTimeout(cfg.Vectorize.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create vectorize client", err)
		os.Exit(1)
	}

	adsRepo := ads.NewRepository(dbClient.DB())
	index, err := vectorindex.NewService(ai, vectors, adsRepo, cfg.Vectorize.TopK, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create vector index", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	cleanup, err := cron.NewExpiredAdCleanupJob(cron.ExpiredAdCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: adsRepo,
		Vectors:    index,
		Retention:  cfg.Cron.ExpiredRetentionDays,
		BatchSize:  cfg.Cron.CleanupBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cleanup job", err)
		os.Exit(1)
	}
	registry.Register(cleanup)

	if cfg.Cron.ReindexEnabled {
		reindex, err := cron.NewVectorReindexJob(cron.VectorReindexJobParams{
			Logger:      logg,
			Repository:  adsRepo,
			Indexer:     index,
			BatchSize:   cfg.Cron.ReindexBatchSize,
			GracePeriod: cfg.Cron.ReindexGracePeriod,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create reindex job", err)
			os.Exit(1)
		}
		registry.Register(reindex)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName, cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
