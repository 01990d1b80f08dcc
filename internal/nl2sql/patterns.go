package nl2sql

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/format"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// DefaultAnswer is the terminal no-match reply. It is a help message, not
// an error; the resolver never fails.
const DefaultAnswer = "I can help you with database queries about customers, orders, products, and sales. Please ask a specific question about the data."

// pattern is one question-shape → SQL-template mapping. Match is a cheap
// predicate over the lowercased question; SQL builds the exact statement;
// Render turns the rows into a sentence.
type pattern struct {
	name   string
	match  func(q string) bool
	sql    func(q string) string
	render func(q string, res *models.QueryResult) string
}

var (
	customerCountRe = regexp.MustCompile(`how many.*customers?`)
	topNRe          = regexp.MustCompile(`(\d+)`)
)

const bestSellerSQL = `SELECT p.name, p.price, c.name as category_name, COUNT(oi.id) as sales_count, SUM(oi.quantity) as total_quantity
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
LEFT JOIN order_items oi ON p.id = oi.product_id
GROUP BY p.id, p.name, p.price, c.name
ORDER BY total_quantity DESC NULLS LAST, sales_count DESC NULLS LAST`

// FallbackResolver answers a closed set of very common questions with
// hand-written SQL. Model-based generation is slow and occasionally
// non-deterministic; for these shapes a template is faster and reliable.
type FallbackResolver struct {
	db contracts.CommerceReader
}

// NewFallbackResolver returns a resolver executing against db.
func NewFallbackResolver(db contracts.CommerceReader) *FallbackResolver {
	return &FallbackResolver{db: db}
}

// Resolve matches the question against the template table in priority
// order. It always returns an answer; when nothing matches (or the store
// fails) the answer is DefaultAnswer with Resolved false.
func (r *FallbackResolver) Resolve(ctx context.Context, question string) *models.SQLResolution {
	q := strings.ToLower(question)

	for _, p := range patternTable {
		if !p.match(q) {
			continue
		}
		sql := p.sql(q)
		res, err := r.db.ExecuteSelect(ctx, sql)
		if err != nil {
			log.Warn().Str("pattern", p.name).Err(err).Msg("fallback template failed")
			break
		}
		log.Info().Str("pattern", p.name).Str("question", question).Msg("answered by fallback template")
		return &models.SQLResolution{
			SQL:      sql,
			Answer:   p.render(q, res),
			Strategy: models.StrategyPattern,
			Resolved: true,
			Result:   res,
			Attempts: 1,
		}
	}

	return &models.SQLResolution{
		Answer:   DefaultAnswer,
		Strategy: models.StrategyPattern,
		Resolved: false,
	}
}

var patternTable = []pattern{
	{
		name:  "customer_count",
		match: func(q string) bool { return customerCountRe.MatchString(q) },
		sql:   constSQL("SELECT COUNT(*) as count FROM customers"),
		render: func(q string, res *models.QueryResult) string {
			return fmt.Sprintf("There are %d customers in the database.", scalarInt(res))
		},
	},
	{
		name:  "order_count",
		match: anyPhrase("how many orders", "count of orders", "number of orders"),
		sql:   constSQL("SELECT COUNT(*) as count FROM orders"),
		render: func(q string, res *models.QueryResult) string {
			return fmt.Sprintf("There are %d orders in the database.", scalarInt(res))
		},
	},
	{
		name:  "product_count",
		match: anyPhrase("how many products", "count of products", "number of products"),
		sql:   constSQL("SELECT COUNT(*) as count FROM products"),
		render: func(q string, res *models.QueryResult) string {
			return fmt.Sprintf("There are %d products in the database.", scalarInt(res))
		},
	},
	{
		name: "total_revenue",
		match: func(q string) bool {
			return strings.Contains(q, "total revenue") || strings.Contains(q, "total sales") ||
				(strings.Contains(q, "sum") && strings.Contains(q, "order")) ||
				strings.Contains(q, "revenue from orders")
		},
		sql: constSQL("SELECT SUM(total) as total FROM orders"),
		render: func(q string, res *models.QueryResult) string {
			return fmt.Sprintf("The total revenue is %s.", format.Money(scalarFloat(res)))
		},
	},
	{
		name:  "average_order",
		match: anyPhrase("average order", "avg order", "mean order"),
		sql:   constSQL("SELECT AVG(total) as avg FROM orders"),
		render: func(q string, res *models.QueryResult) string {
			return fmt.Sprintf("The average order value is %s.", format.Money(scalarFloat(res)))
		},
	},
	{
		name: "best_selling_product",
		match: anyPhrase("best selling product", "top selling product", "most popular product",
			"highest selling product", "product with most sales", "best performing product"),
		sql: constSQL(bestSellerSQL + "\nLIMIT 1"),
		render: func(q string, res *models.QueryResult) string {
			row, ok := firstRow(res)
			if !ok || row[3] == nil || asInt(row[3]) == 0 {
				return "No sales data available to determine the best selling product."
			}
			return fmt.Sprintf("The best selling product is %s ($%.2f, %s) with %d units sold across %d orders.",
				asString(row[0]), asFloat(row[1]), categoryName(row[2]), asInt(row[4]), asInt(row[3]))
		},
	},
	{
		name: "top_customer",
		match: anyPhrase("top customer", "best customer", "customer with most orders",
			"biggest customer", "customer who spent the most", "highest spending customer"),
		sql: constSQL(`SELECT c.first_name, c.last_name, c.email, COUNT(o.id) as order_count, SUM(o.total) as total_spent
FROM customers c
LEFT JOIN orders o ON c.id = o.customer_id
GROUP BY c.id, c.first_name, c.last_name, c.email
ORDER BY total_spent DESC NULLS LAST, order_count DESC NULLS LAST
LIMIT 1`),
		render: func(q string, res *models.QueryResult) string {
			row, ok := firstRow(res)
			if !ok || row[4] == nil {
				return "No order data available to determine the top customer."
			}
			return fmt.Sprintf("The top customer is %s %s (%s) with %s total spent across %d orders.",
				asString(row[0]), asString(row[1]), asString(row[2]), format.Money(asFloat(row[4])), asInt(row[3]))
		},
	},
	{
		name: "largest_order",
		match: anyPhrase("largest order", "biggest order", "highest order",
			"order with highest total", "most expensive order"),
		sql: constSQL(`SELECT o.id, o.total, o.order_date, c.first_name, c.last_name
FROM orders o
LEFT JOIN customers c ON o.customer_id = c.id
ORDER BY o.total DESC
LIMIT 1`),
		render: func(q string, res *models.QueryResult) string {
			row, ok := firstRow(res)
			if !ok {
				return "No orders found in the database."
			}
			name := "Unknown customer"
			if row[3] != nil && row[4] != nil {
				name = asString(row[3]) + " " + asString(row[4])
			}
			return fmt.Sprintf("The largest order is Order #%d for %s by %s on %s.",
				asInt(row[0]), format.Money(asFloat(row[1])), name, asString(row[2]))
		},
	},
	{
		name:  "most_expensive_product",
		match: anyPhrase("most expensive product", "highest priced product", "product with highest price"),
		sql: constSQL(`SELECT p.name, p.price, c.name as category_name
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
ORDER BY p.price DESC
LIMIT 1`),
		render: func(q string, res *models.QueryResult) string {
			row, ok := firstRow(res)
			if !ok {
				return "No products found in the database."
			}
			return fmt.Sprintf("The most expensive product is %s at $%.2f in the %s category.",
				asString(row[0]), asFloat(row[1]), categoryName(row[2]))
		},
	},
	{
		name:  "cheapest_product",
		match: anyPhrase("cheapest product", "lowest priced product", "product with lowest price"),
		sql: constSQL(`SELECT p.name, p.price, c.name as category_name
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
ORDER BY p.price ASC
LIMIT 1`),
		render: func(q string, res *models.QueryResult) string {
			row, ok := firstRow(res)
			if !ok {
				return "No products found in the database."
			}
			return fmt.Sprintf("The cheapest product is %s at $%.2f in the %s category.",
				asString(row[0]), asFloat(row[1]), categoryName(row[2]))
		},
	},
	{
		name: "top_n_products",
		match: func(q string) bool {
			return anyPhrase("list our", "show our", "top")(q) &&
				anyPhrase("cheapest products", "most expensive products", "best selling products",
					"top selling products", "most popular products")(q)
		},
		sql: func(q string) string {
			limit := topN(q)
			switch kind := topNKind(q); kind {
			case "best selling":
				return fmt.Sprintf("%s\nLIMIT %d", bestSellerSQL, limit)
			case "cheapest":
				return fmt.Sprintf(productListSQL, "p.price ASC", limit)
			case "most expensive":
				return fmt.Sprintf(productListSQL, "p.price DESC", limit)
			default:
				return fmt.Sprintf(productListSQL, "p.name ASC", limit)
			}
		},
		render: func(q string, res *models.QueryResult) string {
			kind := topNKind(q)
			var lines []string
			for _, row := range res.Rows {
				if kind == "best selling" {
					lines = append(lines, fmt.Sprintf("- %s ($%.2f, %s) - %d units sold",
						asString(row[0]), asFloat(row[1]), categoryName(row[2]), asInt(row[4])))
				} else {
					lines = append(lines, fmt.Sprintf("- %s ($%.2f, %s)",
						asString(row[0]), asFloat(row[1]), categoryName(row[2])))
				}
			}
			return fmt.Sprintf("Here are the %d %s products:\n%s", topN(q), kind, strings.Join(lines, "\n"))
		},
	},
	{
		name:  "list_products",
		match: anyPhrase("list all products", "show all products"),
		sql: constSQL(`SELECT p.name, p.price, c.name as category_name
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
LIMIT 10`),
		render: func(q string, res *models.QueryResult) string {
			var lines []string
			for _, row := range res.Rows {
				lines = append(lines, fmt.Sprintf("- %s ($%.2f, %s)", asString(row[0]), asFloat(row[1]), categoryName(row[2])))
			}
			return "Here are the first 10 products:\n" + strings.Join(lines, "\n")
		},
	},
	{
		name:  "list_customers",
		match: anyPhrase("list all customers", "show all customers"),
		sql:   constSQL("SELECT first_name, last_name, email FROM customers LIMIT 10"),
		render: func(q string, res *models.QueryResult) string {
			var lines []string
			for _, row := range res.Rows {
				lines = append(lines, fmt.Sprintf("- %s %s (%s)", asString(row[0]), asString(row[1]), asString(row[2])))
			}
			return "Here are the first 10 customers:\n" + strings.Join(lines, "\n")
		},
	},
	{
		name:  "products_by_category",
		match: anyPhrase("products by category", "category breakdown"),
		sql: constSQL(`SELECT c.name as category_name, COUNT(p.id) as product_count, AVG(p.price) as avg_price
FROM categories c
LEFT JOIN products p ON c.id = p.category_id
GROUP BY c.id, c.name
ORDER BY product_count DESC`),
		render: func(q string, res *models.QueryResult) string {
			var lines []string
			for _, row := range res.Rows {
				lines = append(lines, fmt.Sprintf("- %s: %d products, avg price $%.2f",
					asString(row[0]), asInt(row[1]), asFloat(row[2])))
			}
			return "Products by category:\n" + strings.Join(lines, "\n")
		},
	},
	{
		name:  "recent_orders",
		match: anyPhrase("recent orders", "latest orders", "newest orders"),
		sql: constSQL(`SELECT o.id, o.total, o.order_date, c.first_name, c.last_name
FROM orders o
LEFT JOIN customers c ON o.customer_id = c.id
ORDER BY o.order_date DESC
LIMIT 5`),
		render: func(q string, res *models.QueryResult) string {
			var lines []string
			for _, row := range res.Rows {
				lines = append(lines, fmt.Sprintf("- Order #%d: $%.2f by %s %s on %s",
					asInt(row[0]), asFloat(row[1]), asString(row[3]), asString(row[4]), asString(row[2])))
			}
			return "Recent orders:\n" + strings.Join(lines, "\n")
		},
	},
}

const productListSQL = `SELECT p.name, p.price, c.name as category_name
FROM products p
LEFT JOIN categories c ON p.category_id = c.id
ORDER BY %s
LIMIT %d`

func constSQL(sql string) func(string) string {
	return func(string) string { return sql }
}

func anyPhrase(phrases ...string) func(string) bool {
	return func(q string) bool {
		for _, p := range phrases {
			if strings.Contains(q, p) {
				return true
			}
		}
		return false
	}
}

// topN parses the requested list size, defaulting to 5.
func topN(q string) int {
	if m := topNRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 5
}

func topNKind(q string) string {
	switch {
	case strings.Contains(q, "cheapest") || strings.Contains(q, "lowest"):
		return "cheapest"
	case strings.Contains(q, "most expensive") || strings.Contains(q, "highest"):
		return "most expensive"
	case strings.Contains(q, "best selling") || strings.Contains(q, "top selling") || strings.Contains(q, "most popular"):
		return "best selling"
	default:
		return "products"
	}
}

func categoryName(v interface{}) string {
	if v == nil {
		return "Uncategorized"
	}
	return asString(v)
}

func firstRow(res *models.QueryResult) ([]interface{}, bool) {
	if res == nil || len(res.Rows) == 0 {
		return nil, false
	}
	return res.Rows[0], true
}

func scalarInt(res *models.QueryResult) int64 {
	if v, ok := res.SingleValue(); ok {
		return asInt(v)
	}
	return 0
}

func scalarFloat(res *models.QueryResult) float64 {
	if v, ok := res.SingleValue(); ok {
		return asFloat(v)
	}
	return 0
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case time.Time:
		return s.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", v)
	}
}
