package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// SchemaContext renders the commerce schema and a small example-query
// library into prompt text. Introspection is cached after the first call;
// the schema does not change underneath a running process.
type SchemaContext struct {
	db contracts.CommerceReader

	mu       sync.Mutex
	rendered string
}

// NewSchemaContext returns a context builder over db.
func NewSchemaContext(db contracts.CommerceReader) *SchemaContext {
	return &SchemaContext{db: db}
}

// Render returns the schema prompt section, introspecting on first use.
func (s *SchemaContext) Render(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rendered != "" {
		return s.rendered, nil
	}

	schema, err := s.db.Schema(ctx)
	if err != nil {
		return "", fmt.Errorf("introspect schema: %w", err)
	}
	s.rendered = RenderSchema(schema)
	return s.rendered, nil
}

// Invalidate drops the cached rendering.
func (s *SchemaContext) Invalidate() {
	s.mu.Lock()
	s.rendered = ""
	s.mu.Unlock()
}

// RenderSchema formats a schema the way the model sees it.
func RenderSchema(schema *models.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("# Database Schema\n\n")
	for _, t := range schema.Tables {
		fmt.Fprintf(&b, "## Table: %s\n", t.Name)
		for _, c := range t.Columns {
			nullable := "NOT NULL"
			if c.Nullable {
				nullable = "NULL"
			}
			fmt.Fprintf(&b, "- %s: %s %s\n", c.Name, c.Type, nullable)
		}
		if len(t.PrimaryKey) > 0 {
			fmt.Fprintf(&b, "- Primary Key: %s\n", strings.Join(t.PrimaryKey, ", "))
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "- Foreign Key: %s -> %s.%s\n", fk.Column, fk.RefTable, fk.RefColumn)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// exampleSet is one group of worked examples attached when the question
// mentions any of its trigger words.
type exampleSet struct {
	triggers []string
	text     string
}

var exampleSets = []exampleSet{
	{
		triggers: []string{"customer", "spent", "spending", "lifetime"},
		text: "### Count total customers:\n```sql\nSELECT COUNT(*) as total_customers FROM customers;\n```\n\n" +
			"### Top 5 customers by total spending:\n```sql\nSELECT c.first_name, c.last_name, SUM(o.total) as total_spent\nFROM customers c\nJOIN orders o ON c.id = o.customer_id\nGROUP BY c.id, c.first_name, c.last_name\nORDER BY total_spent DESC\nLIMIT 5;\n```\n",
	},
	{
		triggers: []string{"product", "category", "price"},
		text: "### Count total products:\n```sql\nSELECT COUNT(*) as total_products FROM products;\n```\n\n" +
			"### Products by category:\n```sql\nSELECT c.name as category, COUNT(p.id) as product_count\nFROM products p\nJOIN categories c ON p.category_id = c.id\nGROUP BY c.id, c.name\nORDER BY product_count DESC;\n```\n",
	},
	{
		triggers: []string{"order", "revenue", "sales", "total"},
		text: "### Total revenue:\n```sql\nSELECT SUM(total) as total_revenue FROM orders;\n```\n\n" +
			"### Recent orders with customers:\n```sql\nSELECT o.id, o.total, o.order_date, c.first_name, c.last_name\nFROM orders o\nJOIN customers c ON o.customer_id = c.id\nORDER BY o.order_date DESC\nLIMIT 5;\n```\n",
	},
	{
		triggers: []string{"percentage", "contribution", "breakdown", "rank"},
		text: "### Revenue share by category:\n```sql\nSELECT cat.name, SUM(oi.quantity * oi.price) as category_revenue,\n       100.0 * SUM(oi.quantity * oi.price) / SUM(SUM(oi.quantity * oi.price)) OVER () as revenue_percentage\nFROM order_items oi\nJOIN products p ON oi.product_id = p.id\nJOIN categories cat ON p.category_id = cat.id\nGROUP BY cat.id, cat.name\nORDER BY category_revenue DESC;\n```\n",
	},
}

// Examples returns worked SQL examples relevant to the question.
func Examples(question string) string {
	q := strings.ToLower(question)
	var b strings.Builder
	for _, set := range exampleSets {
		for _, trig := range set.triggers {
			if strings.Contains(q, trig) {
				if b.Len() == 0 {
					b.WriteString("# Example SQL Queries\n\n")
				}
				b.WriteString(set.text)
				b.WriteString("\n")
				break
			}
		}
	}
	return b.String()
}
