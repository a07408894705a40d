package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// TableError is a store failure while writing one table. Tables after it
// in load order are not attempted.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// Issue converts the error into a report entry.
func (e *TableError) Issue() domain.Issue {
	return domain.Issue{Kind: domain.KindStoreError, Table: e.Table, Reason: e.Err.Error()}
}

// Loader writes entity collections in foreign-key order. Every table is
// written with insert-or-skip semantics inside its own transaction, so a
// re-run over the same batch inserts nothing and fails nothing.
type Loader struct {
	store     *Store
	policy    ResolutionPolicy
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewLoader creates a Loader. batchSize bounds the rows per INSERT statement.
func NewLoader(s *Store, policy ResolutionPolicy, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	if policy == "" {
		policy = ResolveNull
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Loader{store: s, policy: policy, batchSize: batchSize, logger: logger, metrics: metrics}
}

type tableStep struct {
	table string
	rows  int
	write func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error)
}

// Load writes the entities. On a store failure the returned report lists the
// tables that completed and the error is a *TableError.
func (l *Loader) Load(ctx context.Context, ents domain.Entities) (domain.LoadReport, error) {
	steps := []tableStep{
		{domain.TableCompanies, len(ents.Companies), func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error) {
			return l.loadCompanies(tx, ents.Companies)
		}},
		{domain.TableCustomers, len(ents.Customers), func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error) {
			return l.loadCustomers(ctx, tx, ents.Customers)
		}},
		{domain.TableProducts, len(ents.Products), func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error) {
			return l.loadProducts(tx, ents.Products)
		}},
		{domain.TableOrders, len(ents.Orders), func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error) {
			return l.loadOrders(tx, ents.Orders)
		}},
		{domain.TableWeather, len(ents.Weather), func(ctx context.Context, tx *gorm.DB) (domain.TableLoad, []domain.Issue, error) {
			return l.loadWeather(tx, ents.Weather)
		}},
	}

	var report domain.LoadReport
	for i, step := range steps {
		if step.table == domain.TableOrders && ents.OrdersDropped {
			report.Tables = append(report.Tables, domain.TableLoad{Table: step.table, Status: domain.LoadDropped})
			l.logger.Warn("order collection dropped, skipping table", "table", step.table)
			continue
		}

		var (
			load   domain.TableLoad
			issues []domain.Issue
		)
		err := l.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			load, issues, err = step.write(ctx, tx)
			return err
		})
		if err != nil {
			tableErr := &TableError{Table: step.table, Err: err}
			l.logger.Error("table load failed", "table", step.table, "rows", step.rows, "error", err)
			report.Tables = append(report.Tables, domain.TableLoad{Table: step.table, Attempted: step.rows, Status: domain.LoadFailed})
			for _, rest := range steps[i+1:] {
				report.Tables = append(report.Tables, domain.TableLoad{Table: rest.table, Attempted: rest.rows, Status: domain.LoadSkipped})
			}
			report.Issues = append(report.Issues, tableErr.Issue())
			return report, tableErr
		}

		load.Table = step.table
		load.Status = domain.LoadOK
		report.Tables = append(report.Tables, load)
		report.Issues = append(report.Issues, issues...)

		l.metrics.RowsLoaded.WithLabelValues(step.table, "inserted").Add(float64(load.Inserted))
		l.metrics.RowsLoaded.WithLabelValues(step.table, "skipped").Add(float64(load.Skipped))
		l.logger.Info("table loaded",
			"table", step.table,
			"attempted", load.Attempted,
			"inserted", load.Inserted,
			"skipped", load.Skipped,
		)
	}
	return report, nil
}

func (l *Loader) loadCompanies(tx *gorm.DB, companies []domain.Company) (domain.TableLoad, []domain.Issue, error) {
	rows := make([]companyRow, len(companies))
	for i, c := range companies {
		rows[i] = toCompanyRow(c)
	}
	inserted, err := insertIgnore(tx, rows, l.batchSize, "name", "catch_phrase", "bs")
	return tableLoad(len(rows), inserted), nil, err
}

func (l *Loader) loadCustomers(ctx context.Context, tx *gorm.DB, customers []domain.Customer) (domain.TableLoad, []domain.Issue, error) {
	resolver := NewResolver(tx)
	rows := make([]customerRow, 0, len(customers))
	var issues []domain.Issue

	for _, c := range customers {
		row := toCustomerRow(c)
		key := strconv.FormatInt(c.CustomerID, 10)

		if c.CompanyName != "" {
			res, err := resolver.Resolve(ctx, c.CompanyName)
			if err != nil {
				return domain.TableLoad{}, nil, err
			}
			switch {
			case !res.Found():
				issues = append(issues, domain.Issue{
					Kind:   domain.KindResolutionFailure,
					Table:  domain.TableCustomers,
					Key:    key,
					Reason: fmt.Sprintf("no company named %q (policy %s)", c.CompanyName, l.policy),
				})
				l.logger.Warn("company resolution failed", "customer_id", c.CustomerID, "company", c.CompanyName, "policy", l.policy)
				if l.policy == ResolveSkip {
					continue
				}
			case res.Ambiguous():
				issues = append(issues, domain.Issue{
					Kind:   domain.KindResolutionAmbiguous,
					Table:  domain.TableCustomers,
					Key:    key,
					Reason: fmt.Sprintf("several companies named %q, using company_id %d", c.CompanyName, res.CompanyID),
				})
				fallthrough
			default:
				id := res.CompanyID
				row.CompanyID = &id
			}
		}
		rows = append(rows, row)
	}

	inserted, err := insertIgnore(tx, rows, l.batchSize, "customer_id")
	return tableLoad(len(customers), inserted), issues, err
}

func (l *Loader) loadProducts(tx *gorm.DB, products []domain.Product) (domain.TableLoad, []domain.Issue, error) {
	rows := make([]productRow, len(products))
	for i, p := range products {
		rows[i] = toProductRow(p)
	}
	inserted, err := insertIgnore(tx, rows, l.batchSize, "product_id")
	return tableLoad(len(rows), inserted), nil, err
}

func (l *Loader) loadOrders(tx *gorm.DB, orders []domain.Order) (domain.TableLoad, []domain.Issue, error) {
	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.CustomerID
	}
	known, err := existingCustomers(tx, ids)
	if err != nil {
		return domain.TableLoad{}, nil, err
	}

	rows := make([]orderRow, len(orders))
	var issues []domain.Issue
	for i, o := range orders {
		rows[i] = toOrderRow(o)
		if _, ok := known[o.CustomerID]; !ok {
			rows[i].CustomerID = nil
			issues = append(issues, orphanIssue(domain.TableOrders, strconv.FormatInt(o.OrderID, 10), o.CustomerID))
		}
	}
	inserted, err := insertIgnore(tx, rows, l.batchSize, "order_id")
	return tableLoad(len(rows), inserted), issues, err
}

func (l *Loader) loadWeather(tx *gorm.DB, records []domain.WeatherRecord) (domain.TableLoad, []domain.Issue, error) {
	ids := make([]int64, len(records))
	for i, w := range records {
		ids[i] = w.CustomerID
	}
	known, err := existingCustomers(tx, ids)
	if err != nil {
		return domain.TableLoad{}, nil, err
	}

	rows := make([]weatherRow, len(records))
	var issues []domain.Issue
	for i, w := range records {
		rows[i] = toWeatherRow(w)
		if _, ok := known[w.CustomerID]; !ok {
			rows[i].CustomerID = nil
			issues = append(issues, orphanIssue(domain.TableWeather, w.WeatherID, w.CustomerID))
		}
	}
	inserted, err := insertIgnore(tx, rows, l.batchSize, "weather_id")
	return tableLoad(len(rows), inserted), issues, err
}

func orphanIssue(table, key string, customerID int64) domain.Issue {
	return domain.Issue{
		Kind:   domain.KindOrphanReference,
		Table:  table,
		Key:    key,
		Reason: fmt.Sprintf("customer %d not in store, customer_id set to NULL and kept in source_customer_id", customerID),
	}
}

// existingCustomers returns the subset of ids present in the customers table.
func existingCustomers(tx *gorm.DB, ids []int64) (map[int64]struct{}, error) {
	known := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	var found []int64
	if err := tx.Model(&customerRow{}).Where("customer_id IN ?", distinct(ids)).Pluck("customer_id", &found).Error; err != nil {
		return nil, fmt.Errorf("check customer references: %w", err)
	}
	for _, id := range found {
		known[id] = struct{}{}
	}
	return known, nil
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// insertIgnore inserts rows, skipping any that conflict on the given columns.
// It returns the number of rows actually inserted.
func insertIgnore[T any](tx *gorm.DB, rows []T, batchSize int, conflict ...string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := make([]clause.Column, len(conflict))
	for i, name := range conflict {
		cols[i] = clause.Column{Name: name}
	}
	res := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).
		CreateInBatches(&rows, batchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func tableLoad(attempted, inserted int) domain.TableLoad {
	return domain.TableLoad{Attempted: attempted, Inserted: inserted, Skipped: attempted - inserted}
}
