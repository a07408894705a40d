// Package salescsv reads flat sales records from CSV files.
package salescsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
)

var requiredColumns = []string{"order_id", "customer_id", "product_id", "quantity", "price", "order_date"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// salesRow is the validated form of one CSV line.
type salesRow struct {
	OrderID    int64           `validate:"gt=0"`
	CustomerID int64           `validate:"gt=0"`
	ProductID  int64           `validate:"gt=0"`
	Quantity   int64           `validate:"gte=0"`
	Price      decimal.Decimal `validate:"gte=0"`
	OrderDate  time.Time
}

// FileSource reads sales records from a CSV file on disk.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// ReadSales reads and validates every row of the file.
func (s *FileSource) ReadSales(ctx context.Context) (domain.SalesBatch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return domain.SalesBatch{}, fmt.Errorf("open sales file: %w", err)
	}
	defer f.Close()

	return Parse(ctx, f)
}

type colIndex map[string]int

// Parse reads a sales CSV with a header row. Columns are located by name and
// extra columns are ignored. A missing required column is an error; a row
// that fails to parse or validate is reported as an issue and skipped.
func Parse(ctx context.Context, r io.Reader) (domain.SalesBatch, error) {
	utf8r, err := newUTF8Reader(r)
	if err != nil {
		return domain.SalesBatch{}, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.SalesBatch{}, errors.New("sales file is empty")
	}
	if err != nil {
		return domain.SalesBatch{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := indexHeader(header)
	if err != nil {
		return domain.SalesBatch{}, err
	}

	var batch domain.SalesBatch
	for {
		if err := ctx.Err(); err != nil {
			return domain.SalesBatch{}, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				batch.Issues = append(batch.Issues, rowIssue(parseErr.Line, parseErr.Err.Error()))
				continue
			}
			return domain.SalesBatch{}, fmt.Errorf("read sales row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		rec, err := parseRow(record, cols)
		if err != nil {
			batch.Issues = append(batch.Issues, rowIssue(line, err.Error()))
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func indexHeader(header []string) (colIndex, error) {
	cols := make(colIndex, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("sales file missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(record []string, cols colIndex) (domain.SalesRecord, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(record) {
			return "", fmt.Errorf("%s: missing value", name)
		}
		return strings.TrimSpace(record[i]), nil
	}
	intField := func(name string) (int64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		n, err := parseInt(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	}

	var (
		row salesRow
		err error
	)
	if row.OrderID, err = intField("order_id"); err != nil {
		return domain.SalesRecord{}, err
	}
	if row.CustomerID, err = intField("customer_id"); err != nil {
		return domain.SalesRecord{}, err
	}
	if row.ProductID, err = intField("product_id"); err != nil {
		return domain.SalesRecord{}, err
	}
	if row.Quantity, err = intField("quantity"); err != nil {
		return domain.SalesRecord{}, err
	}

	price, err := field("price")
	if err != nil {
		return domain.SalesRecord{}, err
	}
	if row.Price, err = decimal.NewFromString(price); err != nil {
		return domain.SalesRecord{}, fmt.Errorf("price: invalid decimal %q", price)
	}

	date, err := field("order_date")
	if err != nil {
		return domain.SalesRecord{}, err
	}
	if row.OrderDate, err = domain.ParseOrderDate(date); err != nil {
		return domain.SalesRecord{}, fmt.Errorf("order_date: %w", err)
	}

	if err := validate.Struct(row); err != nil {
		return domain.SalesRecord{}, describeValidation(err)
	}

	return domain.SalesRecord{
		OrderID:    row.OrderID,
		CustomerID: row.CustomerID,
		ProductID:  row.ProductID,
		Quantity:   row.Quantity,
		Price:      row.Price,
		OrderDate:  row.OrderDate,
	}, nil
}

// parseInt accepts integers written as floats with no fractional part
// ("5.0"), which spreadsheet exports commonly produce.
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return d.IntPart(), nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = strings.TrimSpace(fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return errors.New(strings.Join(parts, "; "))
}

func rowIssue(line int, reason string) domain.Issue {
	return domain.Issue{
		Kind:   domain.KindInvalidSalesRow,
		Table:  "sales",
		Key:    "line=" + strconv.Itoa(line),
		Reason: reason,
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
