package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
	"github.com/couchcryptid/sales-data-etl/internal/store"
)

// Settings tunes a single RunPipeline call. Zero values fall back to the
// service defaults.
type Settings struct {
	LookupConcurrency int
	Resolution        store.ResolutionPolicy
	LoadBatchSize     int
	Logger            *slog.Logger
	Metrics           *observability.Metrics
}

func (s Settings) withDefaults() Settings {
	if s.LookupConcurrency <= 0 {
		s.LookupConcurrency = 8
	}
	if s.Resolution == "" {
		s.Resolution = store.ResolveNull
	}
	if s.LoadBatchSize <= 0 {
		s.LoadBatchSize = 500
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Metrics == nil {
		s.Metrics = observability.NewMetricsForTesting()
	}
	return s
}

// RunPipeline performs one complete run: sales rows are joined with customer
// and weather lookups, projected into entity collections and loaded into st.
// A nil weather source disables weather enrichment.
func RunPipeline(ctx context.Context, sales SalesSource, customers domain.CustomerSource, weather domain.WeatherSource, st *store.Store, settings Settings) (domain.RunReport, error) {
	settings = settings.withDefaults()

	enricher := domain.NewEnricher(customers, weather, settings.LookupConcurrency, settings.Logger)
	loader := store.NewLoader(st, settings.Resolution, settings.LoadBatchSize, settings.Logger, settings.Metrics)

	p := New(sales, enricher, st, loader, settings.Logger, settings.Metrics)
	return p.RunOnce(ctx)
}
