// Command inspect reports the state of a loaded sales database: row counts
// per table and, when given the sales CSV that fed it, whether every order
// and product in the file made it into the store.
//
// Usage:
//
//	go run ./cmd/inspect \
//	  -driver sqlite \
//	  -dsn sales.db \
//	  -sales data/sales_data.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/sales-data-etl/internal/adapter/salescsv"
	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/store"
)

// phase tracks pass/fail for an inspection phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	driver := flag.String("driver", store.DriverSQLite, "database driver (sqlite or postgres)")
	dsn := flag.String("dsn", "sales.db", "database DSN")
	salesFile := flag.String("sales", "", "optional sales CSV to check against the store")
	flag.Parse()

	if code := run(*driver, *dsn, *salesFile); code != 0 {
		os.Exit(code)
	}
}

func run(driver, dsn, salesFile string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(driver, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	defer st.Close()

	fmt.Println("=== Sales Store Inspection ===")
	fmt.Println()

	counts, err := st.Counts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	for _, table := range domain.LoadOrder {
		fmt.Printf("  %-18s %8d rows\n", table, counts[table])
	}

	if salesFile == "" {
		return 0
	}

	batch, err := salescsv.NewFileSource(salesFile).ReadSales(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		checkSalesFile(batch),
		checkKeys(ctx, st, "Orders present", domain.TableOrders, batch.Records, func(r domain.SalesRecord) int64 { return r.OrderID }),
		checkKeys(ctx, st, "Products present", domain.TableProducts, batch.Records, func(r domain.SalesRecord) int64 { return r.ProductID }),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nInspection FAILED.")
	return 1
}

func checkSalesFile(batch domain.SalesBatch) *phase {
	p := &phase{name: "Sales file rows valid"}
	for _, issue := range batch.Issues {
		p.errorf("%s", issue)
	}
	return p
}

func checkKeys(ctx context.Context, st *store.Store, name, table string, records []domain.SalesRecord, key func(domain.SalesRecord) int64) *phase {
	p := &phase{name: name}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = key(r)
	}
	missing, err := st.MissingKeys(ctx, table, ids)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, id := range missing {
		p.errorf("%s: id %d not in store", table, id)
	}
	return p
}
