package store

import (
	"context"
	"errors"

	"github.com/storechat/storechat/pkg/models"
)

// ErrNoCommerceDatabase is returned by DemoCommerce when a question needs
// live data but no PostgreSQL URL was configured.
var ErrNoCommerceDatabase = errors.New("commerce database not configured")

// DemoCommerce is the CommerceReader used when the server runs without
// PostgreSQL. It serves a representative schema so prompts and the schema
// endpoint keep working, and fails every query so the pipeline falls
// through to its help answer.
type DemoCommerce struct{}

func NewDemoCommerce() *DemoCommerce { return &DemoCommerce{} }

func (DemoCommerce) ExecuteSelect(context.Context, string) (*models.QueryResult, error) {
	return nil, ErrNoCommerceDatabase
}

func (DemoCommerce) Schema(context.Context) (*models.DatabaseSchema, error) {
	return &models.DatabaseSchema{Tables: []models.TableSchema{
		{
			Name: "customers",
			Columns: []models.ColumnSchema{
				{Name: "id", Type: "integer"},
				{Name: "first_name", Type: "text"},
				{Name: "last_name", Type: "text"},
				{Name: "email", Type: "text"},
				{Name: "phone", Type: "text", Nullable: true},
				{Name: "created_at", Type: "timestamp with time zone"},
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "categories",
			Columns: []models.ColumnSchema{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "products",
			Columns: []models.ColumnSchema{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "price", Type: "numeric"},
				{Name: "category_id", Type: "integer", Nullable: true},
				{Name: "sku", Type: "text", Nullable: true},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []models.ForeignKey{
				{Column: "category_id", RefTable: "categories", RefColumn: "id"},
			},
		},
		{
			Name: "orders",
			Columns: []models.ColumnSchema{
				{Name: "id", Type: "integer"},
				{Name: "customer_id", Type: "integer"},
				{Name: "order_date", Type: "timestamp with time zone", Nullable: true},
				{Name: "status", Type: "text", Nullable: true},
				{Name: "total", Type: "numeric", Nullable: true},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []models.ForeignKey{
				{Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			},
		},
		{
			Name: "order_items",
			Columns: []models.ColumnSchema{
				{Name: "id", Type: "integer"},
				{Name: "order_id", Type: "integer"},
				{Name: "product_id", Type: "integer"},
				{Name: "quantity", Type: "integer"},
				{Name: "price", Type: "numeric"},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []models.ForeignKey{
				{Column: "order_id", RefTable: "orders", RefColumn: "id"},
				{Column: "product_id", RefTable: "products", RefColumn: "id"},
			},
		},
	}}, nil
}
