package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for errors the application logger could not report
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"klineforge/config"
	"klineforge/internal/adapters/binanceclient"
	"klineforge/internal/adapters/logger"
	"klineforge/internal/adapters/rediscache"
	"klineforge/internal/adapters/sqlstore"
	"klineforge/internal/app"
	"klineforge/internal/metrics"
	"klineforge/internal/pipeline"
	"klineforge/internal/ports"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// run wires and starts the application. Every deferred shutdown has run by
// the time it returns.
func run(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String(), os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, reg)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				appLogger.Error(ctx, err, "Error stopping metrics server")
			}
		}()
		appLogger.Info(ctx, "Metrics server started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 4. Initialize Run Repository (Database Adapter)
	var runs ports.RunRepository
	if cfg.DBDriver != "none" {
		repo, err := sqlstore.NewRepository(ctx, sqlstore.Config{
			Driver: cfg.DBDriver,
			DSN:    cfg.DBDSN,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "Failed to initialize run repository")
			return fmt.Errorf("failed to initialize run repository: %w", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing run repository")
			}
		}()
		runs = repo
	}

	// 5. Initialize Kline Source (Binance Adapter, optionally cached)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		BaseURL:    cfg.BaseURL,
		Logger:     appLogger,
		Metrics:    appMetrics,
	})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize Binance client")
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}

	var source ports.KlineSource = binanceClient
	if cfg.RedisAddr != "" {
		cache, err := rediscache.New(ctx, binanceClient, rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
			Logger:   appLogger,
			Metrics:  appMetrics,
		})
		if err != nil {
			appLogger.Error(ctx, err, "Failed to initialize kline cache")
			return fmt.Errorf("failed to initialize kline cache: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing kline cache")
			}
		}()
		source = cache
		appLogger.Info(ctx, "Kline cache enabled", map[string]interface{}{"addr": cfg.RedisAddr, "ttl": cfg.CacheTTL.String()})
	}

	// 6. Initialize Pipeline
	pipe, err := pipeline.New(pipeline.Config{
		Logger:  appLogger,
		Metrics: appMetrics,
		Observer: func(e pipeline.Event) {
			appLogger.Debug(ctx, "Pipeline stage finished", map[string]interface{}{
				"run_id": e.RunID, "symbol": e.Symbol, "stage": string(e.Stage), "rows": e.Rows, "detail": e.Detail,
			})
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	// 7. Initialize Application Service
	featureService, err := app.NewFeatureService(cfg, appLogger, source, runs, pipe)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize feature service")
		return fmt.Errorf("failed to initialize feature service: %w", err)
	}
	appLogger.Info(ctx, "Feature service initialized")

	// 8. Start the Service
	if err := featureService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Feature service exited with error")
		return fmt.Errorf("feature service: %w", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
	return nil
}
