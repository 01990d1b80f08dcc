package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/storechat/storechat/internal/store"
)

func TestDemoCommerce_QueriesAlwaysFail(t *testing.T) {
	dc := store.NewDemoCommerce()
	_, err := dc.ExecuteSelect(context.Background(), "SELECT COUNT(*) FROM customers")
	if !errors.Is(err, store.ErrNoCommerceDatabase) {
		t.Fatalf("ExecuteSelect error = %v, want ErrNoCommerceDatabase", err)
	}
}

// The demo schema feeds prompt building, so its column names must match
// the ones the pattern SQL templates query.
func TestDemoCommerce_SchemaMatchesPatternColumns(t *testing.T) {
	dc := store.NewDemoCommerce()
	schema, err := dc.Schema(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	wantColumns := map[string][]string{
		"customers":   {"first_name", "last_name", "email"},
		"orders":      {"customer_id", "order_date", "total"},
		"order_items": {"order_id", "product_id", "quantity", "price"},
		"products":    {"name", "price", "category_id"},
	}
	for table, cols := range wantColumns {
		ts := schema.Table(table)
		if ts == nil {
			t.Fatalf("table %q missing from demo schema", table)
		}
		for _, col := range cols {
			found := false
			for _, c := range ts.Columns {
				if c.Name == col {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("demo schema %s is missing column %q", table, col)
			}
		}
	}
}
