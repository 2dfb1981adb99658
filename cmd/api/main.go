package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/adboard-backend/api"
	"github.com/angelmondragon/adboard-backend/api/controllers"
	"github.com/angelmondragon/adboard-backend/api/routes"
	"github.com/angelmondragon/adboard-backend/internal/ads"
	"github.com/angelmondragon/adboard-backend/internal/analysis"
	"github.com/angelmondragon/adboard-backend/internal/analytics"
	"github.com/angelmondragon/adboard-backend/internal/analytics/worker"
	"github.com/angelmondragon/adboard-backend/internal/analytics/writer"
	"github.com/angelmondragon/adboard-backend/internal/checkout"
	"github.com/angelmondragon/adboard-backend/internal/payments"
	"github.com/angelmondragon/adboard-backend/internal/pricing"
	"github.com/angelmondragon/adboard-backend/internal/search"
	"github.com/angelmondragon/adboard-backend/internal/vectorindex"
	"github.com/angelmondragon/adboard-backend/pkg/bigquery"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	"github.com/angelmondragon/adboard-backend/pkg/db"
	"github.com/angelmondragon/adboard-backend/pkg/env"
	"github.com/angelmondragon/adboard-backend/pkg/instance"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
	"github.com/angelmondragon/adboard-backend/pkg/metrics"
	"github.com/angelmondragon/adboard-backend/pkg/migrate"
	"github.com/angelmondragon/adboard-backend/pkg/redis"
	"github.com/angelmondragon/adboard-backend/pkg/solana"
	"github.com/angelmondragon/adboard-backend/pkg/vectorize"
	"github.com/angelmondragon/adboard-backend/pkg/workersai"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rpc, err := solana.NewClient(cfg.Solana.RPCURL,
		solana.WithCommitment(cfg.Solana.Commitment),
		solana.WithTimeout(cfg.Solana.RequestTimeout),
	)
	requireResource(ctx, logg, "solana rpc client", err)

	verifier, err := payments.NewVerifier(rpc, payments.Config{
		TreasuryAccount: cfg.Solana.TreasuryTokenAccount,
		TokenMint:       cfg.Solana.TokenMint,
		ToleranceUnits:  cfg.Solana.ToleranceUnits,
		Retry: payments.RetryPolicy{
			MaxAttempts:    cfg.Solana.FetchAttempts,
			InitialBackoff: cfg.Solana.InitialBackoff,
			MaximumBackoff: cfg.Solana.MaximumBackoff,
		},
	}, logg)
	requireResource(ctx, logg, "payment verifier", err)

	ai, err := workersai.NewClient(cfg.AI.AccountID, cfg.AI.APIToken,
		workersai.WithBaseURL(cfg.AI.BaseURL),
		workersai.WithTextModel(cfg.AI.TextModel),
		workersai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		workersai.WithTimeout(cfg.AI.Timeout),
	)
	requireResource(ctx, logg, "workers ai client", err)

	vectors, err := vectorize.NewClient(cfg.AI.AccountID, cfg.AI.APIToken, cfg.Vectorize.IndexName,
		vectorize.WithBaseURL(cfg.Vectorize.BaseURL),
		vectorize.WithTimeout(cfg.Vectorize.Timeout),
	)
	requireResource(ctx, logg, "vectorize client", err)

	analyzer, err := analysis.NewAnalyzer(ai, cfg.AI.MaxTokens, logg)
	requireResource(ctx, logg, "content analyzer", err)

	adsRepo := ads.NewRepository(dbClient.DB())
	index, err := vectorindex.NewService(ai, vectors, adsRepo, cfg.Vectorize.TopK, logg)
	requireResource(ctx, logg, "vector index", err)

	schedule := pricing.ScheduleFromConfig(cfg.Pricing)
	checkoutService, err := checkout.NewService(checkout.Deps{
		Payments: verifier,
		Guard:    ads.NewGuard(adsRepo),
		Analyzer: analyzer,
		Store:    adsRepo,
		Indexer:  index,
		Metrics:  metrics.NewSagaMetrics(registry),
		Logger:   logg,
	}, checkout.Config{
		Schedule:            schedule,
		MaxDurationDays:     cfg.Pricing.MaxDurationDays,
		Timeout:             cfg.Saga.Timeout,
		CompensationTimeout: cfg.Saga.CompensationTimeout,
		RevalidatePayment:   cfg.Saga.RevalidatePayment,
	})
	requireResource(ctx, logg, "checkout service", err)

	adsService, err := ads.NewService(adsRepo, index, checkoutService, logg)
	requireResource(ctx, logg, "ads service", err)

	searchService, err := search.NewService(adsRepo, index, metrics.NewSearchMetrics(registry), search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logg)
	requireResource(ctx, logg, "search service", err)

	readiness := []controllers.ReadinessCheck{
		{Name: "database", Check: dbClient.Ping},
		{Name: "redis", Check: redisClient.Ping},
		{Name: "treasury", Check: verifier.CheckTreasury},
	}

	analyticsDeps := analytics.Deps{
		Store:   analytics.NewRepository(dbClient.DB()),
		Ads:     adsRepo,
		Dedup:   redisClient,
		Metrics: metrics.NewEngagementMetrics(registry),
		Logger:  logg,
	}
	if cfg.Analytics.BigQueryEnabled {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery client", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "failed to close bigquery client", err)
			}
		}()

		mirror, err := writer.New(bqClient, writer.Config{AdEventTable: cfg.BigQuery.AdEventsTable})
		requireResource(ctx, logg, "analytics bigquery writer", err)
		analyticsDeps.Mirror = mirror
		readiness = append(readiness, controllers.ReadinessCheck{Name: "bigquery", Check: bqClient.Ping})

		flushWorker, err := worker.NewService(mirror, 0, logg)
		requireResource(ctx, logg, "analytics flush worker", err)
		go func() {
			if err := flushWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "analytics flush worker stopped", err)
			}
		}()
	}

	analyticsService, err := analytics.NewService(analyticsDeps, cfg.Analytics.DedupWindow)
	requireResource(ctx, logg, "analytics service", err)

	router := routes.NewRouter(routes.Deps{
		Config:    cfg,
		Logger:    logg,
		Checkout:  checkoutService,
		Ads:       adsService,
		Search:    searchService,
		Analytics: analyticsService,
		Limiter:   redisClient,
		Gatherer:  registry,
		Quote: controllers.PriceQuoteConfig{
			Schedule:        schedule,
			MaxDurationDays: cfg.Pricing.MaxDurationDays,
			Decimals:        cfg.Solana.TokenDecimals,
			TreasuryAccount: verifier.Treasury(),
			TokenMint:       cfg.Solana.TokenMint,
		},
		Readiness: readiness,
	})

	addr := ":" + env.Get("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	if err := api.Serve(ctx, api.NewServer(addr, router), logg); err != nil {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(logCtx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(ctx, "failed to initialize "+name, err)
		os.Exit(1)
	}
}
