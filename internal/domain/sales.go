package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SalesRecord is one row of the flat sales input.
type SalesRecord struct {
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OrderDate  time.Time       `json:"order_date"`
}

// SalesBatch is the result of reading the sales source once: the accepted
// rows in input order plus one issue per rejected row.
type SalesBatch struct {
	Records []SalesRecord
	Issues  []Issue
}

var orderDateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseOrderDate parses an ISO date or timestamp and truncates it to the
// calendar date in UTC.
func ParseOrderDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range orderDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return CalendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse order date %q: unsupported format", s)
}

// CalendarDate drops the time-of-day component, keeping the date as written.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
