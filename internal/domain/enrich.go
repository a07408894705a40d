package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// EnrichedRecord is a sales row with the customer and weather payloads that
// could be found for it. A nil payload means the lookup yielded nothing.
type EnrichedRecord struct {
	Sales    SalesRecord      `json:"sales"`
	Customer *CustomerPayload `json:"customer,omitempty"`
	Weather  *WeatherPayload  `json:"weather,omitempty"`
}

// Enrichment is the output of one Enrich call.
type Enrichment struct {
	Records []EnrichedRecord
	Issues  []Issue

	CustomerLookups int
	WeatherLookups  int
}

// Matched counts the records that carry a customer and a weather payload.
func (e Enrichment) Matched() (customers, weather int) {
	for _, r := range e.Records {
		if r.Customer != nil {
			customers++
		}
		if r.Weather != nil {
			weather++
		}
	}
	return customers, weather
}

// Enricher joins sales rows with customer and weather lookups. Lookups are
// issued once per distinct key, at most concurrency at a time.
type Enricher struct {
	customers   CustomerSource
	weather     WeatherSource
	concurrency int
	logger      *slog.Logger
}

// NewEnricher creates an Enricher. A nil weather source disables weather
// enrichment.
func NewEnricher(customers CustomerSource, weather WeatherSource, concurrency int, logger *slog.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Enricher{
		customers:   customers,
		weather:     weather,
		concurrency: concurrency,
		logger:      logger,
	}
}

type customerResult struct {
	payload *CustomerPayload
	issues  []Issue
}

type weatherResult struct {
	payload *WeatherPayload
	issue   *Issue
}

// Enrich looks up every distinct customer and location referenced by sales
// and returns one EnrichedRecord per sales row, in input order. A missing or
// malformed customer or weather payload is reported and left absent. Any
// other customer source failure is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, sales []SalesRecord) (Enrichment, error) {
	ids := distinctCustomerIDs(sales)
	customers, err := e.lookupCustomers(ctx, ids)
	if err != nil {
		return Enrichment{}, err
	}

	out := Enrichment{CustomerLookups: len(ids)}
	for _, id := range ids {
		out.Issues = append(out.Issues, customers[id].issues...)
	}

	var weather map[GeoKey]weatherResult
	if e.weather != nil {
		points := distinctGeoPoints(sales, customers)
		weather, err = e.lookupWeather(ctx, points)
		if err != nil {
			return Enrichment{}, err
		}
		out.WeatherLookups = len(points)
		for _, p := range points {
			if r := weather[p.Key()]; r.issue != nil {
				out.Issues = append(out.Issues, *r.issue)
			}
		}
	}

	out.Records = make([]EnrichedRecord, len(sales))
	for i, s := range sales {
		rec := EnrichedRecord{Sales: s}
		if c := customers[s.CustomerID].payload; c != nil {
			rec.Customer = c
			if geo, ok := c.Geo(); ok && weather != nil {
				rec.Weather = weather[geo.Key()].payload
			}
		}
		out.Records[i] = rec
	}
	return out, nil
}

func (e *Enricher) lookupCustomers(ctx context.Context, ids []int64) (map[int64]customerResult, error) {
	results := make([]customerResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.lookupCustomer(gctx, id)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := make(map[int64]customerResult, len(ids))
	for i, id := range ids {
		byID[id] = results[i]
	}
	return byID, nil
}

func (e *Enricher) lookupCustomer(ctx context.Context, id int64) (customerResult, error) {
	key := strconv.FormatInt(id, 10)

	raw, err := e.customers.FetchCustomer(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		e.logger.Warn("customer not found", "customer_id", id)
		return customerResult{issues: []Issue{{Kind: KindLookupMiss, Table: "customers", Key: key, Reason: "customer not found"}}}, nil
	case errors.Is(err, ErrMalformedPayload):
		e.logger.Warn("customer payload malformed", "customer_id", id, "error", err)
		return customerResult{issues: []Issue{{Kind: KindMalformedPayload, Table: "customers", Key: key, Reason: err.Error()}}}, nil
	case err != nil:
		return customerResult{}, fmt.Errorf("lookup customer %d: %w", id, err)
	}

	p, issues, err := NormalizeCustomer(raw)
	if err != nil {
		e.logger.Warn("customer payload invalid", "customer_id", id, "error", err)
		return customerResult{issues: []Issue{{Kind: KindMalformedPayload, Table: "customers", Key: key, Reason: err.Error()}}}, nil
	}
	if p.ID != id {
		e.logger.Warn("customer payload id mismatch", "customer_id", id, "payload_id", p.ID)
		return customerResult{issues: []Issue{{Kind: KindMalformedPayload, Table: "customers", Key: key,
			Reason: fmt.Sprintf("payload carries id %d", p.ID)}}}, nil
	}
	if _, ok := p.Geo(); !ok {
		issues = append(issues, Issue{Kind: KindLookupMiss, Table: "weather_records", Key: key, Reason: "customer has no geo coordinates, weather skipped"})
	}
	return customerResult{payload: &p, issues: issues}, nil
}

func (e *Enricher) lookupWeather(ctx context.Context, points []GeoPoint) (map[GeoKey]weatherResult, error) {
	results := make([]weatherResult, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, pt := range points {
		g.Go(func() error {
			results[i] = e.lookupWeatherAt(gctx, pt)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byKey := make(map[GeoKey]weatherResult, len(points))
	for i, pt := range points {
		byKey[pt.Key()] = results[i]
	}
	return byKey, nil
}

func (e *Enricher) lookupWeatherAt(ctx context.Context, pt GeoPoint) weatherResult {
	key := pt.Key().String()

	w, err := e.weather.FetchWeather(ctx, pt)
	if err != nil {
		e.logger.Warn("weather lookup failed", "geo", key, "error", err)
		kind := KindLookupMiss
		if errors.Is(err, ErrMalformedPayload) {
			kind = KindMalformedPayload
		}
		return weatherResult{issue: &Issue{Kind: kind, Table: "weather_records", Key: key, Reason: err.Error()}}
	}
	return weatherResult{payload: &w}
}

// distinctCustomerIDs returns customer ids in first-seen order.
func distinctCustomerIDs(sales []SalesRecord) []int64 {
	seen := make(map[int64]struct{}, len(sales))
	ids := make([]int64, 0, len(sales))
	for _, s := range sales {
		if _, ok := seen[s.CustomerID]; ok {
			continue
		}
		seen[s.CustomerID] = struct{}{}
		ids = append(ids, s.CustomerID)
	}
	return ids
}

// distinctGeoPoints returns the coordinates of matched customers in
// first-seen order, deduplicated by their textual form.
func distinctGeoPoints(sales []SalesRecord, customers map[int64]customerResult) []GeoPoint {
	seen := make(map[GeoKey]struct{})
	var points []GeoPoint
	for _, s := range sales {
		geo, ok := customers[s.CustomerID].payload.Geo()
		if !ok {
			continue
		}
		if _, dup := seen[geo.Key()]; dup {
			continue
		}
		seen[geo.Key()] = struct{}{}
		points = append(points, geo)
	}
	return points
}
