package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
)

// Row models. The has-many slices on parent rows exist only so AutoMigrate
// puts each foreign key on the child table; inserts always omit them.

type companyRow struct {
	CompanyID   uint          `gorm:"column:company_id;primaryKey;autoIncrement"`
	Name        string        `gorm:"column:name;not null;default:'';uniqueIndex:idx_companies_natural_key"`
	CatchPhrase string        `gorm:"column:catch_phrase;not null;default:'';uniqueIndex:idx_companies_natural_key"`
	BS          string        `gorm:"column:bs;not null;default:'';uniqueIndex:idx_companies_natural_key"`
	Customers   []customerRow `gorm:"foreignKey:CompanyID;references:CompanyID"`
}

func (companyRow) TableName() string { return domain.TableCompanies }

type customerRow struct {
	CustomerID int64        `gorm:"column:customer_id;primaryKey;autoIncrement:false"`
	Name       string       `gorm:"column:name;not null"`
	Username   string       `gorm:"column:username"`
	Email      string       `gorm:"column:email"`
	Phone      string       `gorm:"column:phone"`
	Website    string       `gorm:"column:website"`
	Street     string       `gorm:"column:street"`
	Suite      string       `gorm:"column:suite"`
	City       string       `gorm:"column:city"`
	Zipcode    string       `gorm:"column:zipcode"`
	GeoLat     *float64     `gorm:"column:geo_lat"`
	GeoLng     *float64     `gorm:"column:geo_lng"`
	CompanyID  *uint        `gorm:"column:company_id;index"`
	Orders     []orderRow   `gorm:"foreignKey:CustomerID;references:CustomerID"`
	Weather    []weatherRow `gorm:"foreignKey:CustomerID;references:CustomerID"`
}

func (customerRow) TableName() string { return domain.TableCustomers }

type productRow struct {
	ProductID int64           `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Orders    []orderRow      `gorm:"foreignKey:ProductID;references:ProductID"`
}

func (productRow) TableName() string { return domain.TableProducts }

// SourceCustomerID keeps the customer id read from the sales row even when
// CustomerID is NULL because that customer never reached the store.
type orderRow struct {
	OrderID          int64     `gorm:"column:order_id;primaryKey;autoIncrement:false"`
	CustomerID       *int64    `gorm:"column:customer_id;index"`
	SourceCustomerID *int64    `gorm:"column:source_customer_id"`
	ProductID        int64     `gorm:"column:product_id;not null;index"`
	OrderDate        time.Time `gorm:"column:order_date;type:date;not null"`
	Quantity         int64     `gorm:"column:quantity;not null"`
}

func (orderRow) TableName() string { return domain.TableOrders }

type weatherRow struct {
	WeatherID        string    `gorm:"column:weather_id;primaryKey;size:32"`
	CustomerID       *int64    `gorm:"column:customer_id;index"`
	SourceCustomerID *int64    `gorm:"column:source_customer_id"`
	Latitude         *float64  `gorm:"column:latitude"`
	Longitude        *float64  `gorm:"column:longitude"`
	MainWeather      string    `gorm:"column:main_weather"`
	Description      string    `gorm:"column:description"`
	Temperature      *float64  `gorm:"column:temperature"`
	Humidity         *int64    `gorm:"column:humidity"`
	WeatherDate      time.Time `gorm:"column:weather_date;type:date;not null"`
}

func (weatherRow) TableName() string { return domain.TableWeather }

// models lists the row models in load order.
func models() []any {
	return []any{&companyRow{}, &customerRow{}, &productRow{}, &orderRow{}, &weatherRow{}}
}

func toCompanyRow(c domain.Company) companyRow {
	return companyRow{Name: c.Name, CatchPhrase: c.CatchPhrase, BS: c.BS}
}

func toCustomerRow(c domain.Customer) customerRow {
	return customerRow{
		CustomerID: c.CustomerID,
		Name:       c.Name,
		Username:   c.Username,
		Email:      c.Email,
		Phone:      c.Phone,
		Website:    c.Website,
		Street:     c.Street,
		Suite:      c.Suite,
		City:       c.City,
		Zipcode:    c.Zipcode,
		GeoLat:     c.GeoLat,
		GeoLng:     c.GeoLng,
	}
}

func toProductRow(p domain.Product) productRow {
	return productRow{ProductID: p.ProductID, Price: p.Price}
}

func toOrderRow(o domain.Order) orderRow {
	customerID, source := o.CustomerID, o.CustomerID
	return orderRow{
		OrderID:          o.OrderID,
		CustomerID:       &customerID,
		SourceCustomerID: &source,
		ProductID:        o.ProductID,
		OrderDate:        o.OrderDate,
		Quantity:         o.Quantity,
	}
}

func toWeatherRow(w domain.WeatherRecord) weatherRow {
	customerID, source := w.CustomerID, w.CustomerID
	return weatherRow{
		WeatherID:        w.WeatherID,
		CustomerID:       &customerID,
		SourceCustomerID: &source,
		Latitude:         w.Latitude,
		Longitude:        w.Longitude,
		MainWeather:      w.Main,
		Description:      w.Description,
		Temperature:      w.Temperature,
		Humidity:         w.Humidity,
		WeatherDate:      w.WeatherDate,
	}
}
