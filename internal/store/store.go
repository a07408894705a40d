// Package store persists the normalized sales entities in a relational
// database through GORM. SQLite serves local runs and tests; Postgres is the
// production target.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store owns the database handle.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the database. Foreign keys are enforced on SQLite.
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn))
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// A single connection keeps in-memory databases alive and serializes writers.
		sqlDB.SetMaxOpenConns(1)
	}

	return &Store{db: db, driver: driver, logger: logger}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateSchema creates the five tables with their keys and indexes. It is
// safe to call against an existing schema.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Counts returns the number of rows per table.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(domain.LoadOrder))
	for i, m := range models() {
		var n int64
		if err := s.db.WithContext(ctx).Model(m).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", domain.LoadOrder[i], err)
		}
		counts[domain.LoadOrder[i]] = n
	}
	return counts, nil
}

// integerKeys maps the tables with integer natural keys to their key column.
var integerKeys = map[string]string{
	domain.TableCustomers: "customer_id",
	domain.TableProducts:  "product_id",
	domain.TableOrders:    "order_id",
}

// MissingKeys returns the ids, in input order and without duplicates, that
// have no row in table. Only customers, products and orders are supported.
func (s *Store) MissingKeys(ctx context.Context, table string, ids []int64) ([]int64, error) {
	col, ok := integerKeys[table]
	if !ok {
		return nil, fmt.Errorf("table %q has no integer key", table)
	}
	ids = distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var found []int64
	if err := s.db.WithContext(ctx).Table(table).Where(col+" IN ?", ids).Pluck(col, &found).Error; err != nil {
		return nil, fmt.Errorf("query %s keys: %w", table, err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
