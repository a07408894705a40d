package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "sales.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateSchema(context.Background()))
	return s
}

func newTestLoader(t *testing.T, s *Store, policy ResolutionPolicy) *Loader {
	t.Helper()
	return NewLoader(s, policy, 2, discardLogger(), observability.NewMetricsForTesting())
}

func ptr[T any](v T) *T { return &v }

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleEntities() domain.Entities {
	return domain.Entities{
		Companies: []domain.Company{
			{Name: "Keebler LLC", CatchPhrase: "User-centric fault-tolerant solution", BS: "revolutionize end-to-end systems"},
			{Name: "Abernathy Group", CatchPhrase: "Implemented secondary concept", BS: "e-enable extensible e-tailers"},
			{Name: "Yost and Sons", CatchPhrase: "Switchable contextually-based project", BS: "aggregate real-time technologies"},
		},
		Customers: []domain.Customer{
			{CustomerID: 5, Name: "Chelsey Dietrich", Email: "Lucio_Hettinger@annie.ca", GeoLat: ptr(-31.8129), GeoLng: ptr(62.5342), CompanyName: "Keebler LLC"},
			{CustomerID: 8, Name: "Nicholas Runolfsdottir V", Email: "Sherwood@rosamond.me", CompanyName: "Abernathy Group"},
			{CustomerID: 9, Name: "Glenna Reichert", Email: "Chaim_McDermott@dana.io", CompanyName: "Yost and Sons"},
		},
		Products: []domain.Product{
			{ProductID: 40, Price: decimal.RequireFromString("35.6")},
			{ProductID: 13, Price: decimal.RequireFromString("36.52")},
			{ProductID: 44, Price: decimal.RequireFromString("46.56")},
			{ProductID: 26, Price: decimal.RequireFromString("15.87")},
		},
		Orders: []domain.Order{
			{OrderID: 2334, CustomerID: 5, ProductID: 40, OrderDate: date("2022-06-21"), Quantity: 3},
			{OrderID: 6228, CustomerID: 8, ProductID: 13, OrderDate: date("2023-03-08"), Quantity: 7},
			{OrderID: 7784, CustomerID: 9, ProductID: 44, OrderDate: date("2023-04-22"), Quantity: 4},
			{OrderID: 6588, CustomerID: 5, ProductID: 26, OrderDate: date("2022-10-23"), Quantity: 1},
		},
		Weather: []domain.WeatherRecord{
			{WeatherID: "wx-1", CustomerID: 5, Main: "Clouds", Description: "overcast clouds", Temperature: ptr(293.22), Humidity: ptr(int64(62)), WeatherDate: date("2022-06-21")},
			{WeatherID: "wx-2", CustomerID: 8, Main: "Clouds", Description: "few clouds", Temperature: ptr(298.97), Humidity: ptr(int64(72)), WeatherDate: date("2023-03-08")},
			{WeatherID: "wx-3", CustomerID: 9, Main: "Clouds", Description: "overcast clouds", Temperature: ptr(295.24), Humidity: ptr(int64(78)), WeatherDate: date("2023-04-22")},
			{WeatherID: "wx-4", CustomerID: 5, Main: "Clouds", Description: "overcast clouds", Temperature: ptr(293.22), Humidity: ptr(int64(62)), WeatherDate: date("2022-10-23")},
		},
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", discardLogger())
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "sales.db?_foreign_keys=on", sqliteDSN("sales.db"))
	assert.Equal(t, "file:sales.db?cache=shared&_foreign_keys=on", sqliteDSN("file:sales.db?cache=shared"))
	assert.Equal(t, "sales.db?_fk=1", sqliteDSN("sales.db?_fk=1"))
}

func TestCreateSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateSchema(context.Background()))

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"companies":       0,
		"customers":       0,
		"products":        0,
		"orders":          0,
		"weather_records": 0,
	}, counts)
}

func TestCreateSchema_ForeignKeysPointAtParents(t *testing.T) {
	s := newTestStore(t)

	type foreignKey struct {
		Table string `gorm:"column:table"`
		From  string `gorm:"column:from"`
		To    string `gorm:"column:to"`
	}
	keysOf := func(table string) []foreignKey {
		var keys []foreignKey
		require.NoError(t, s.db.Raw(`SELECT "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY "from"`, table).Scan(&keys).Error)
		return keys
	}

	assert.Empty(t, keysOf("companies"))
	assert.Empty(t, keysOf("products"))
	assert.Equal(t, []foreignKey{{Table: "companies", From: "company_id", To: "company_id"}}, keysOf("customers"))
	assert.Equal(t, []foreignKey{
		{Table: "customers", From: "customer_id", To: "customer_id"},
		{Table: "products", From: "product_id", To: "product_id"},
	}, keysOf("orders"))
	assert.Equal(t, []foreignKey{{Table: "customers", From: "customer_id", To: "customer_id"}}, keysOf("weather_records"))
}

func TestLoad_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	report, err := l.Load(context.Background(), sampleEntities())

	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.Equal(t, domain.LoadOrder, report.Completed())
	for _, tl := range report.Tables {
		assert.Equal(t, tl.Attempted, tl.Inserted, tl.Table)
	}

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"companies":       3,
		"customers":       3,
		"products":        4,
		"orders":          4,
		"weather_records": 4,
	}, counts)

	var c customerRow
	require.NoError(t, s.db.Where("customer_id = ?", 5).First(&c).Error)
	assert.Equal(t, "Chelsey Dietrich", c.Name)
	require.NotNil(t, c.CompanyID)

	var keebler companyRow
	require.NoError(t, s.db.Where("name = ?", "Keebler LLC").First(&keebler).Error)
	assert.Equal(t, keebler.CompanyID, *c.CompanyID)

	var o orderRow
	require.NoError(t, s.db.Where("order_id = ?", 6228).First(&o).Error)
	require.NotNil(t, o.CustomerID)
	assert.Equal(t, int64(8), *o.CustomerID)
	assert.Equal(t, "2023-03-08", o.OrderDate.Format(time.DateOnly))
}

func TestLoad_Idempotent(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	_, err := l.Load(context.Background(), sampleEntities())
	require.NoError(t, err)
	first, err := s.Counts(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.CreateSchema(context.Background()))
	report, err := l.Load(context.Background(), sampleEntities())
	require.NoError(t, err)
	second, err := s.Counts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for _, tl := range report.Tables {
		assert.Equal(t, 0, tl.Inserted, tl.Table)
		assert.Equal(t, tl.Attempted, tl.Skipped, tl.Table)
	}
}

func TestLoad_ExistingRowsAreNotOverwritten(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	_, err := l.Load(context.Background(), sampleEntities())
	require.NoError(t, err)

	changed := sampleEntities()
	changed.Products[0].Price = decimal.RequireFromString("99.9")
	_, err = l.Load(context.Background(), changed)
	require.NoError(t, err)

	var p productRow
	require.NoError(t, s.db.Where("product_id = ?", 40).First(&p).Error)
	assert.True(t, decimal.RequireFromString("35.6").Equal(p.Price), "got %s", p.Price)
}

func TestLoad_ResolutionFailure_NullPolicy(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	ents := sampleEntities()
	ents.Companies = ents.Companies[1:] // Keebler LLC never inserted

	report, err := l.Load(context.Background(), ents)

	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, domain.KindResolutionFailure, report.Issues[0].Kind)
	assert.Equal(t, "5", report.Issues[0].Key)

	var c customerRow
	require.NoError(t, s.db.Where("customer_id = ?", 5).First(&c).Error)
	assert.Nil(t, c.CompanyID)
}

func TestLoad_ResolutionFailure_SkipPolicy(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveSkip)

	ents := sampleEntities()
	ents.Companies = ents.Companies[1:]

	report, err := l.Load(context.Background(), ents)

	require.NoError(t, err)
	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["customers"])

	kinds := map[domain.IssueKind]int{}
	for _, i := range report.Issues {
		kinds[i.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.KindResolutionFailure])
	// Two orders and two weather rows reference the skipped customer.
	assert.Equal(t, 4, kinds[domain.KindOrphanReference])

	var o orderRow
	require.NoError(t, s.db.Where("order_id = ?", 2334).First(&o).Error)
	assert.Nil(t, o.CustomerID)
}

func TestLoad_CustomerWithoutCompany(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveSkip)

	ents := sampleEntities()
	ents.Customers[1].CompanyName = ""

	report, err := l.Load(context.Background(), ents)

	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	var c customerRow
	require.NoError(t, s.db.Where("customer_id = ?", 8).First(&c).Error)
	assert.Nil(t, c.CompanyID)
}

func TestLoad_OrphanOrderKeepsRowWithNullCustomer(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	ents := sampleEntities()
	ents.Orders = append(ents.Orders, domain.Order{OrderID: 9999, CustomerID: 404, ProductID: 40, OrderDate: date("2022-01-01"), Quantity: 1})

	report, err := l.Load(context.Background(), ents)

	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, domain.KindOrphanReference, report.Issues[0].Kind)
	assert.Equal(t, "orders", report.Issues[0].Table)
	assert.Equal(t, "9999", report.Issues[0].Key)

	var o orderRow
	require.NoError(t, s.db.Where("order_id = ?", 9999).First(&o).Error)
	assert.Nil(t, o.CustomerID)
	require.NotNil(t, o.SourceCustomerID)
	assert.Equal(t, int64(404), *o.SourceCustomerID)
}

func TestLoad_DroppedOrders(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	ents := sampleEntities()
	ents.Orders = nil
	ents.OrdersDropped = true

	report, err := l.Load(context.Background(), ents)

	require.NoError(t, err)
	require.Len(t, report.Tables, 5)
	assert.Equal(t, domain.LoadDropped, report.Tables[3].Status)
	assert.Equal(t, domain.LoadOK, report.Tables[4].Status)

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["orders"])
	assert.Equal(t, int64(4), counts["weather_records"])
}

func TestLoad_StoreErrorStopsSequence(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	// Products referenced by orders are missing, so the foreign key on
	// orders.product_id rejects the insert.
	ents := sampleEntities()
	ents.Products = nil

	report, err := l.Load(context.Background(), ents)

	var tableErr *TableError
	require.True(t, errors.As(err, &tableErr), "got %v", err)
	assert.Equal(t, "orders", tableErr.Table)
	assert.Equal(t, []string{"companies", "customers", "products"}, report.Completed())
	assert.Equal(t, domain.LoadFailed, report.Tables[3].Status)
	assert.Equal(t, domain.LoadSkipped, report.Tables[4].Status)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, domain.KindStoreError, report.Issues[len(report.Issues)-1].Kind)

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["orders"], "failed table is rolled back")
	assert.Equal(t, int64(0), counts["weather_records"])
}

func TestLoad_EmptyEntities(t *testing.T) {
	s := newTestStore(t)
	l := newTestLoader(t, s, ResolveNull)

	report, err := l.Load(context.Background(), domain.Entities{})

	require.NoError(t, err)
	assert.Len(t, report.Completed(), 5)
}

func TestMissingKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := newTestLoader(t, s, ResolveNull).Load(ctx, sampleEntities())
	require.NoError(t, err)

	missing, err := s.MissingKeys(ctx, domain.TableOrders, []int64{2334, 9999, 6228, 9999, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{9999, 1}, missing)

	missing, err = s.MissingKeys(ctx, domain.TableProducts, []int64{40, 13, 44, 26})
	require.NoError(t, err)
	assert.Empty(t, missing)

	missing, err = s.MissingKeys(ctx, domain.TableCustomers, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMissingKeys_UnsupportedTable(t *testing.T) {
	s := newTestStore(t)

	_, err := s.MissingKeys(context.Background(), domain.TableWeather, []int64{1})
	require.Error(t, err)
}
