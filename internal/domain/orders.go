package domain

import (
	"fmt"
	"strconv"
)

// AssembleOrders builds one Order per distinct order_id, in first-seen order.
// Repeated rows with identical content collapse into one order; an order_id
// that appears with a different customer, product, date or quantity returns
// a *DataIntegrityError.
func AssembleOrders(sales []SalesRecord) ([]Order, error) {
	orders := make([]Order, 0, len(sales))
	index := make(map[int64]int, len(sales))

	for _, s := range sales {
		o := Order{
			OrderID:    s.OrderID,
			CustomerID: s.CustomerID,
			ProductID:  s.ProductID,
			OrderDate:  CalendarDate(s.OrderDate),
			Quantity:   s.Quantity,
		}
		i, seen := index[o.OrderID]
		if !seen {
			index[o.OrderID] = len(orders)
			orders = append(orders, o)
			continue
		}
		if conflicts := orderConflicts(orders[i], o); len(conflicts) > 0 {
			return nil, &DataIntegrityError{
				Table:     TableOrders,
				Key:       strconv.FormatInt(o.OrderID, 10),
				Conflicts: conflicts,
			}
		}
	}
	return orders, nil
}

func orderConflicts(a, b Order) []string {
	var out []string
	if a.CustomerID != b.CustomerID {
		out = append(out, fmt.Sprintf("customer_id %d != %d", a.CustomerID, b.CustomerID))
	}
	if a.ProductID != b.ProductID {
		out = append(out, fmt.Sprintf("product_id %d != %d", a.ProductID, b.ProductID))
	}
	if !a.OrderDate.Equal(b.OrderDate) {
		out = append(out, fmt.Sprintf("order_date %s != %s", a.OrderDate.Format("2006-01-02"), b.OrderDate.Format("2006-01-02")))
	}
	if a.Quantity != b.Quantity {
		out = append(out, fmt.Sprintf("quantity %d != %d", a.Quantity, b.Quantity))
	}
	return out
}
