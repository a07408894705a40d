package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company is a projected company row. Its surrogate id is assigned by the
// store, so the projection only carries the natural attributes.
type Company struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catch_phrase"`
	BS          string `json:"bs"`
}

// Customer is a projected customer row. CompanyName is resolved to a
// company id at load time and is not persisted itself.
type Customer struct {
	CustomerID  int64    `json:"customer_id"`
	Name        string   `json:"name"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Website     string   `json:"website"`
	Street      string   `json:"street"`
	Suite       string   `json:"suite"`
	City        string   `json:"city"`
	Zipcode     string   `json:"zipcode"`
	GeoLat      *float64 `json:"geo_lat"`
	GeoLng      *float64 `json:"geo_lng"`
	CompanyName string   `json:"company_name,omitempty"`
}

// Product is a projected product row.
type Product struct {
	ProductID int64           `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

// Order is an assembled order row.
type Order struct {
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	ProductID  int64     `json:"product_id"`
	OrderDate  time.Time `json:"order_date"`
	Quantity   int64     `json:"quantity"`
}

// WeatherRecord is one weather observation attached to an order.
type WeatherRecord struct {
	WeatherID   string    `json:"weather_id"`
	CustomerID  int64     `json:"customer_id"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Main        string    `json:"main"`
	Description string    `json:"description"`
	Temperature *float64  `json:"temperature"`
	Humidity    *int64    `json:"humidity"`
	WeatherDate time.Time `json:"weather_date"`
}

// Entities holds the five collections written by a load, in load order.
// A nil Orders slice with OrdersDropped set means the order collection
// failed its integrity check and must not be written.
type Entities struct {
	Companies []Company
	Customers []Customer
	Products  []Product
	Orders    []Order
	Weather   []WeatherRecord

	OrdersDropped bool
}

// Counts returns the number of projected rows per table.
func (e Entities) Counts() map[string]int {
	return map[string]int{
		TableCompanies: len(e.Companies),
		TableCustomers: len(e.Customers),
		TableProducts:  len(e.Products),
		TableOrders:    len(e.Orders),
		TableWeather:   len(e.Weather),
	}
}

// Table names, in load order.
const (
	TableCompanies = "companies"
	TableCustomers = "customers"
	TableProducts  = "products"
	TableOrders    = "orders"
	TableWeather   = "weather_records"
)

// LoadOrder lists the tables in foreign-key dependency order.
var LoadOrder = []string{TableCompanies, TableCustomers, TableProducts, TableOrders, TableWeather}
