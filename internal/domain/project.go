package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ProjectCompanies returns one Company per distinct (name, catch_phrase, bs)
// tuple, in first-seen order. Two companies with the same name but different
// taglines are kept as separate rows.
func ProjectCompanies(records []EnrichedRecord) []Company {
	seen := make(map[Company]struct{})
	var out []Company
	for _, r := range records {
		if r.Customer == nil || r.Customer.Company == nil {
			continue
		}
		c := Company{
			Name:        r.Customer.Company.Name,
			CatchPhrase: r.Customer.Company.CatchPhrase,
			BS:          r.Customer.Company.BS,
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ProjectCustomers returns one Customer per distinct customer id. The first
// occurrence wins.
func ProjectCustomers(records []EnrichedRecord) []Customer {
	seen := make(map[int64]struct{})
	var out []Customer
	for _, r := range records {
		p := r.Customer
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}

		c := Customer{
			CustomerID: p.ID,
			Name:       p.Name,
			Username:   p.Username,
			Email:      p.Email,
			Phone:      p.Phone,
			Website:    p.Website,
		}
		if a := p.Address; a != nil {
			c.Street = a.Street
			c.Suite = a.Suite
			c.City = a.City
			c.Zipcode = a.Zipcode
		}
		if geo, ok := p.Geo(); ok {
			c.GeoLat = geo.Lat.Float()
			c.GeoLng = geo.Lng.Float()
		}
		if p.Company != nil {
			c.CompanyName = p.Company.Name
		}
		out = append(out, c)
	}
	return out
}

// ProjectProducts returns one Product per distinct product id. The price of
// the first occurrence wins; later prices for the same id are discarded.
func ProjectProducts(records []EnrichedRecord) []Product {
	seen := make(map[int64]struct{})
	var out []Product
	for _, r := range records {
		id := r.Sales.ProductID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Product{ProductID: id, Price: r.Sales.Price})
	}
	return out
}

// ProjectWeather returns one WeatherRecord per record carrying a weather
// payload. The weather date is the order date, not the observation time.
func ProjectWeather(records []EnrichedRecord) []WeatherRecord {
	seen := make(map[string]struct{})
	var out []WeatherRecord
	for _, r := range records {
		if r.Weather == nil || r.Customer == nil {
			continue
		}
		geo, _ := r.Customer.Geo()
		date := CalendarDate(r.Sales.OrderDate)
		id := weatherID(r.Sales.OrderID, r.Sales.CustomerID, geo.Key(), date.Format("2006-01-02"))
		// Identical duplicate sales rows produce the same id.
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		main, desc := r.Weather.Condition()
		out = append(out, WeatherRecord{
			WeatherID:   id,
			CustomerID:  r.Sales.CustomerID,
			Latitude:    r.Weather.Latitude(),
			Longitude:   r.Weather.Longitude(),
			Main:        main,
			Description: desc,
			Temperature: r.Weather.Temperature(),
			Humidity:    r.Weather.Humidity(),
			WeatherDate: date,
		})
	}
	return out
}

// weatherID produces a deterministic id so re-running a batch skips weather
// rows that are already stored.
func weatherID(orderID, customerID int64, geo GeoKey, date string) string {
	input := fmt.Sprintf("%d|%d|%s|%s|%s", orderID, customerID, geo.Lat, geo.Lng, date)
	hash := sha256.Sum256([]byte(input))
	return "wx-" + hex.EncodeToString(hash[:8])
}

// Project derives all five entity collections from the enriched records.
// Collections are built concurrently from the same read-only input and
// joined before returning. An order collection that fails its integrity
// check is dropped and reported; the other collections are unaffected.
func Project(ctx context.Context, records []EnrichedRecord) (Entities, []Issue, error) {
	var (
		ents     Entities
		orderErr error
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		ents.Companies = ProjectCompanies(records)
		return nil
	})
	g.Go(func() error {
		ents.Customers = ProjectCustomers(records)
		return nil
	})
	g.Go(func() error {
		ents.Products = ProjectProducts(records)
		return nil
	})
	g.Go(func() error {
		sales := make([]SalesRecord, len(records))
		for i, r := range records {
			sales[i] = r.Sales
		}
		ents.Orders, orderErr = AssembleOrders(sales)
		return nil
	})
	g.Go(func() error {
		ents.Weather = ProjectWeather(records)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Entities{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Entities{}, nil, err
	}

	var issues []Issue
	if orderErr != nil {
		var integrity *DataIntegrityError
		if !errors.As(orderErr, &integrity) {
			return Entities{}, nil, orderErr
		}
		ents.Orders = nil
		ents.OrdersDropped = true
		issues = append(issues, integrity.Issue())
	}
	return ents, issues, nil
}
