package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// SalesSource reads one batch of sales rows.
type SalesSource interface {
	ReadSales(ctx context.Context) (domain.SalesBatch, error)
}

// Enricher joins sales rows with customer and weather payloads.
type Enricher interface {
	Enrich(ctx context.Context, sales []domain.SalesRecord) (domain.Enrichment, error)
}

// Store prepares the relational schema.
type Store interface {
	CreateSchema(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Loader writes entity collections to the store.
type Loader interface {
	Load(ctx context.Context, ents domain.Entities) (domain.LoadReport, error)
}

// Publisher exports enriched records and run reports. It is optional.
type Publisher interface {
	PublishEnriched(ctx context.Context, runID string, records []domain.EnrichedRecord) error
	PublishReport(ctx context.Context, report domain.RunReport) error
}

// Refresher reloads lookup data at the start of every run. It is optional.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Run outcomes recorded in the runs_total metric.
const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeFailed  = "failed"
)

// Pipeline orchestrates the read-enrich-project-load run.
type Pipeline struct {
	source    SalesSource
	enricher  Enricher
	store     Store
	loader    Loader
	publisher Publisher
	refresher Refresher
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready atomic.Bool

	mu   sync.RWMutex
	last *domain.RunReport
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithPublisher exports every run to p.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithRefresher refreshes r before each run reads its sales rows. A failed
// refresh is reported as a warning and the run continues.
func WithRefresher(r Refresher) Option {
	return func(pl *Pipeline) { pl.refresher = r }
}

// New creates a Pipeline with the given stages and observability.
func New(source SalesSource, enricher Enricher, store Store, loader Loader, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		enricher: enricher,
		store:    store,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a run has finished without a store
// failure and the store is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// LastReport returns the report of the most recent run.
func (p *Pipeline) LastReport() (domain.RunReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return domain.RunReport{}, false
	}
	return *p.last, true
}

// Run executes one pipeline run, or with a positive interval keeps running
// until the context is cancelled. A failed scheduled run is retried with
// exponential backoff capped at the interval.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if interval <= 0 {
		_, err := p.RunOnce(ctx)
		return err
	}

	p.logger.Info("pipeline started", "interval", interval)
	backoff := initialBackoff
	for {
		wait := interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			wait = backoff
			backoff = nextBackoff(backoff, interval)
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce refreshes lookup data, reads the sales source and processes it.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.RunReport, error) {
	var pending []domain.Issue
	if p.refresher != nil {
		if err := p.refresher.Refresh(ctx); err != nil {
			p.logger.Warn("lookup refresh failed", "error", err)
			pending = append(pending, domain.Issue{Kind: domain.KindLookupMiss, Table: domain.TableCustomers, Reason: "refresh failed: " + err.Error()})
		}
	}

	batch, err := p.source.ReadSales(ctx)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues(outcomeFailed).Inc()
		p.logger.Error("read sales failed", "error", err)
		return domain.RunReport{}, fmt.Errorf("read sales: %w", err)
	}
	return p.process(ctx, batch, pending)
}

// Process enriches, projects and loads one sales batch. The report is always
// returned; the error is non-nil when a store failure stopped the load.
func (p *Pipeline) Process(ctx context.Context, batch domain.SalesBatch) (domain.RunReport, error) {
	return p.process(ctx, batch, nil)
}

func (p *Pipeline) process(ctx context.Context, batch domain.SalesBatch, pending []domain.Issue) (domain.RunReport, error) {
	report := domain.RunReport{
		RunID:        uuid.NewString(),
		StartedAt:    domain.Now(),
		RowsRead:     len(batch.Records) + len(batch.Issues),
		RowsRejected: len(batch.Issues),
	}
	report.AddIssues(pending...)
	report.AddIssues(batch.Issues...)
	p.metrics.SalesRowsRead.Add(float64(report.RowsRead))
	p.metrics.SalesRowsRejected.Add(float64(report.RowsRejected))

	logger := p.logger.With("run_id", report.RunID)
	logger.Info("run started", "rows", len(batch.Records), "rejected", len(batch.Issues))

	enrichment, err := p.enricher.Enrich(ctx, batch.Records)
	if err != nil {
		logger.Error("enrichment failed", "error", err)
		return p.finish(ctx, report, fmt.Errorf("enrich: %w", err))
	}
	report.RowsEnriched = len(enrichment.Records)
	report.CustomerMatched, report.WeatherMatched = enrichment.Matched()
	report.AddIssues(enrichment.Issues...)
	logger.Info("enrichment complete",
		"rows", report.RowsEnriched,
		"customer_lookups", enrichment.CustomerLookups,
		"weather_lookups", enrichment.WeatherLookups,
		"customer_matched", report.CustomerMatched,
		"weather_matched", report.WeatherMatched,
	)

	ents, issues, err := domain.Project(ctx, enrichment.Records)
	if err != nil {
		return p.finish(ctx, report, fmt.Errorf("project: %w", err))
	}
	report.EntitiesPerTable = ents.Counts()
	report.AddIssues(issues...)

	if err := p.store.CreateSchema(ctx); err != nil {
		report.AddIssues(domain.Issue{Kind: domain.KindStoreError, Reason: err.Error()})
		return p.finish(ctx, report, err)
	}

	load, loadErr := p.loader.Load(ctx, ents)
	report.Tables = load.Tables
	report.AddIssues(load.Issues...)
	report.Completed = loadErr == nil && tablesLoaded(load.Tables) == len(load.Tables)

	if p.publisher != nil && len(enrichment.Records) > 0 {
		if err := p.publisher.PublishEnriched(ctx, report.RunID, enrichment.Records); err != nil {
			logger.Warn("publish enriched records failed", "error", err)
			report.AddIssues(domain.Issue{Kind: domain.KindPublishFailed, Key: report.RunID, Reason: err.Error()})
		}
	}

	return p.finish(ctx, report, loadErr)
}

// finish stamps the report, records metrics, publishes it and stores it as
// the latest run.
func (p *Pipeline) finish(ctx context.Context, report domain.RunReport, runErr error) (domain.RunReport, error) {
	report.FinishedAt = domain.Now()

	if p.publisher != nil && ctx.Err() == nil {
		if err := p.publisher.PublishReport(ctx, report); err != nil {
			p.logger.Warn("publish run report failed", "run_id", report.RunID, "error", err)
			report.AddIssues(domain.Issue{Kind: domain.KindPublishFailed, Key: report.RunID, Reason: err.Error()})
		}
	}

	outcome := outcomeSuccess
	switch {
	case runErr != nil:
		outcome = outcomeFailed
		if tablesLoaded(report.Tables) > 0 {
			outcome = outcomePartial
		}
	case len(report.Errors) > 0:
		outcome = outcomePartial
	}
	p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	p.metrics.RunDuration.Observe(report.Duration().Seconds())
	for _, list := range [][]domain.Issue{report.Warnings, report.Errors} {
		for _, issue := range list {
			p.metrics.Issues.WithLabelValues(string(issue.Kind)).Inc()
		}
	}

	for _, issue := range report.Errors {
		p.logger.Error("run error", "run_id", report.RunID, "issue", issue.String())
	}
	p.logger.Info("run finished",
		"run_id", report.RunID,
		"outcome", outcome,
		"duration", report.Duration(),
		"entities", report.EntitiesPerTable,
		"warnings", len(report.Warnings),
		"errors", len(report.Errors),
	)

	if runErr == nil {
		p.ready.Store(true)
	}
	p.mu.Lock()
	p.last = &report
	p.mu.Unlock()

	return report, runErr
}

func tablesLoaded(tables []domain.TableLoad) int {
	n := 0
	for _, t := range tables {
		if t.Status == domain.LoadOK {
			n++
		}
	}
	return n
}

const initialBackoff = 200 * time.Millisecond

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
