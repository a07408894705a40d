package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/sales-data-etl/internal/adapter/http"
	"github.com/couchcryptid/sales-data-etl/internal/adapter/jsonplaceholder"
	kafkaadapter "github.com/couchcryptid/sales-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sales-data-etl/internal/adapter/openweather"
	"github.com/couchcryptid/sales-data-etl/internal/adapter/salescsv"
	"github.com/couchcryptid/sales-data-etl/internal/config"
	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
	"github.com/couchcryptid/sales-data-etl/internal/pipeline"
	"github.com/couchcryptid/sales-data-etl/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	policy, err := store.ParseResolutionPolicy(cfg.CompanyResolution)
	if err != nil {
		return err
	}

	var opts []pipeline.Option

	// With bulk fetch on, the customer list is fetched again at the start of
	// every run; otherwise each distinct id is looked up on its own.
	customerClient := jsonplaceholder.NewClient(cfg.CustomerAPIURL, cfg.LookupTimeout, metrics, logger)
	var customers domain.CustomerSource = customerClient
	if cfg.CustomerBulkFetch {
		snapshot := jsonplaceholder.NewSnapshot(customerClient)
		customers = snapshot
		opts = append(opts, pipeline.WithRefresher(snapshot))
	}

	// Weather enrichment is feature-flagged via WEATHER_ENABLED / WEATHER_API_KEY.
	var weather domain.WeatherSource
	if cfg.WeatherEnabled {
		client := openweather.NewClient(cfg.WeatherAPIURL, cfg.WeatherAPIKey, cfg.LookupTimeout, metrics, logger)
		weather = openweather.NewCachedSource(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clockwork.NewRealClock(), metrics)
		metrics.WeatherEnabled.Set(1)
		logger.Info("weather enrichment enabled", "cache_size", cfg.WeatherCacheSize, "cache_ttl", cfg.WeatherCacheTTL)
	} else {
		logger.Info("weather enrichment disabled")
	}

	enricher := domain.NewEnricher(customers, weather, cfg.LookupConcurrency, logger)
	loader := store.NewLoader(st, policy, cfg.LoadBatchSize, logger, metrics)

	if cfg.KafkaEnabled {
		pub := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEnrichedTopic, cfg.KafkaReportTopic, metrics, logger)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(pub))
		logger.Info("kafka export enabled", "brokers", cfg.KafkaBrokers)
	}

	p := pipeline.New(salescsv.NewFileSource(cfg.SalesFile), enricher, st, loader, logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx, cfg.RunInterval)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}
