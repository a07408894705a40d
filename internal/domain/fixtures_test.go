package domain

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sale(orderID, customerID, productID, qty int64, price, date string) SalesRecord {
	d, err := ParseOrderDate(date)
	if err != nil {
		panic(err)
	}
	return SalesRecord{
		OrderID:    orderID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   qty,
		Price:      decimal.RequireFromString(price),
		OrderDate:  d,
	}
}

func sampleSales() []SalesRecord {
	return []SalesRecord{
		sale(2334, 5, 40, 3, "35.6", "2022-06-21"),
		sale(6228, 8, 13, 7, "36.52", "2023-03-08"),
		sale(7784, 9, 44, 4, "46.56", "2023-04-22"),
		sale(6588, 5, 26, 1, "15.87", "2022-10-23"),
	}
}

func chelsey() CustomerPayload {
	return CustomerPayload{
		ID:       5,
		Name:     "Chelsey Dietrich",
		Username: "Kamren",
		Email:    "Lucio_Hettinger@annie.ca",
		Phone:    "(254)954-1289",
		Website:  "demarco.info",
		Address: &Address{
			Street: "Skiles Walks", Suite: "Suite 351", City: "Roscoeview", Zipcode: "33263",
			Geo: &GeoPoint{Lat: "-31.8129", Lng: "62.5342"},
		},
		Company: &CompanyInfo{Name: "Keebler LLC", CatchPhrase: "User-centric fault-tolerant solution", BS: "revolutionize end-to-end systems"},
	}
}

func nicholas() CustomerPayload {
	return CustomerPayload{
		ID:       8,
		Name:     "Nicholas Runolfsdottir V",
		Username: "Maxime_Nienow",
		Email:    "Sherwood@rosamond.me",
		Phone:    "586.493.6943 x140",
		Website:  "jacynthe.com",
		Address: &Address{
			Street: "Ellsworth Summit", Suite: "Suite 729", City: "Aliyaview", Zipcode: "45169",
			Geo: &GeoPoint{Lat: "-14.3990", Lng: "-120.7677"},
		},
		Company: &CompanyInfo{Name: "Abernathy Group", CatchPhrase: "Implemented secondary concept", BS: "e-enable extensible e-tailers"},
	}
}

func glenna() CustomerPayload {
	return CustomerPayload{
		ID:       9,
		Name:     "Glenna Reichert",
		Username: "Delphine",
		Email:    "Chaim_McDermott@dana.io",
		Phone:    "(775)976-6794 x41206",
		Website:  "conrad.com",
		Address: &Address{
			Street: "Dayna Park", Suite: "Suite 449", City: "Bartholomebury", Zipcode: "76495-3109",
			Geo: &GeoPoint{Lat: "24.6463", Lng: "-168.8889"},
		},
		Company: &CompanyInfo{Name: "Yost and Sons", CatchPhrase: "Switchable contextually-based project", BS: "aggregate real-time technologies"},
	}
}

func sampleDirectory() CustomerDirectory {
	return NewCustomerDirectory([]CustomerPayload{chelsey(), nicholas(), glenna()})
}

func weatherAt(lat, lon float64, main, desc string, temp, humidity float64) WeatherPayload {
	return WeatherPayload{
		Coord:      &WeatherCoord{Lat: OptionalFloat{Value: lat, Valid: true}, Lon: OptionalFloat{Value: lon, Valid: true}},
		Conditions: []WeatherCondition{{Main: main, Description: desc}},
		Main:       &WeatherMain{Temp: OptionalFloat{Value: temp, Valid: true}, Humidity: OptionalFloat{Value: humidity, Valid: true}},
	}
}

// --- mock sources ---

type mockCustomers struct {
	mu      sync.Mutex
	inner   CustomerSource
	errs    map[int64]error
	calls   map[int64]int
	delay   time.Duration
	started int
}

func newMockCustomers(inner CustomerSource) *mockCustomers {
	return &mockCustomers{inner: inner, errs: map[int64]error{}, calls: map[int64]int{}}
}

func (m *mockCustomers) FetchCustomer(ctx context.Context, id int64) (CustomerPayload, error) {
	m.mu.Lock()
	m.calls[id]++
	m.started++
	err := m.errs[id]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return CustomerPayload{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if err != nil {
		return CustomerPayload{}, err
	}
	return m.inner.FetchCustomer(ctx, id)
}

type mockWeather struct {
	mu      sync.Mutex
	results map[GeoKey]WeatherPayload
	errs    map[GeoKey]error
	calls   map[GeoKey]int
}

func newMockWeather() *mockWeather {
	return &mockWeather{
		results: map[GeoKey]WeatherPayload{
			{Lat: "-31.8129", Lng: "62.5342"}:   weatherAt(-31.8129, 62.5342, "Clouds", "overcast clouds", 293.22, 62),
			{Lat: "-14.3990", Lng: "-120.7677"}: weatherAt(-14.399, -120.7677, "Clouds", "few clouds", 298.97, 72),
			{Lat: "24.6463", Lng: "-168.8889"}:  weatherAt(24.6463, -168.8889, "Clouds", "overcast clouds", 295.24, 78),
		},
		errs:  map[GeoKey]error{},
		calls: map[GeoKey]int{},
	}
}

func (m *mockWeather) FetchWeather(_ context.Context, geo GeoPoint) (WeatherPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := geo.Key()
	m.calls[key]++
	if err := m.errs[key]; err != nil {
		return WeatherPayload{}, err
	}
	w, ok := m.results[key]
	if !ok {
		return WeatherPayload{}, ErrNotFound
	}
	return w, nil
}

func (m *mockWeather) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}
