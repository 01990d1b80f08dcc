// Package format renders executed query results for humans: a markdown
// table with column-name-driven cell formatting, and one-sentence answers
// for scalar results. Formatting is presentational only; values are never
// re-derived.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/storechat/storechat/pkg/models"
)

// DefaultMaxRows is the table row cap before truncation.
const DefaultMaxRows = 10

// percentTokens mark a column as a percentage value.
var percentTokens = []string{"percent", "ratio", "contribution", "rate"}

// currencyTokens mark a column as a money value, unless a count token
// also appears (order_count is a count, not dollars).
var currencyTokens = []string{"price", "cost", "amount", "revenue", "sales", "value", "money", "dollar", "total"}

var countTokens = []string{"count", "order", "quantity", "qty", "id", "number"}

// Formatter renders query results.
type Formatter struct {
	MaxRows int
}

// New returns a Formatter with the default row cap.
func New() *Formatter {
	return &Formatter{MaxRows: DefaultMaxRows}
}

// Table renders columns and rows as a markdown table, at most MaxRows data
// rows, with a truncation note when rows were cut.
func (f *Formatter) Table(columns []string, rows [][]interface{}) string {
	if len(columns) == 0 || len(rows) == 0 {
		return "The query returned no results."
	}

	max := f.MaxRows
	if max <= 0 {
		max = DefaultMaxRows
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")

	shown := rows
	if len(shown) > max {
		shown = shown[:max]
	}
	for _, row := range shown {
		cells := make([]string, len(columns))
		for i := range columns {
			var v interface{}
			if i < len(row) {
				v = row[i]
			}
			cells[i] = f.Cell(v, columns[i])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if len(rows) > max {
		fmt.Fprintf(&b, "\n*Showing first %d of %d rows.*", max, len(rows))
	}
	return b.String()
}

// Cell formats one value according to its column name.
func (f *Formatter) Cell(value interface{}, column string) string {
	if value == nil {
		return "NULL"
	}

	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int, int32, int64:
		n := toFloat(v)
		if isPercentColumn(column) {
			return fmt.Sprintf("%.2f%%", n)
		}
		if isCurrencyColumn(column) {
			return fmt.Sprintf("$%.2f", n)
		}
		return fmt.Sprintf("%d", value)
	case float32, float64:
		n := toFloat(v)
		switch {
		case isPercentColumn(column):
			return fmt.Sprintf("%.2f%%", n)
		case isCurrencyColumn(column):
			return fmt.Sprintf("$%.2f", n)
		case n == float64(int64(n)) && isCountColumn(column):
			return fmt.Sprintf("%d", int64(n))
		default:
			return trimZeros(strconv.FormatFloat(n, 'f', 4, 64))
		}
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Sentence composes a one-line natural answer for a 1x1 result, falling
// back to the rendered table for anything wider.
func (f *Formatter) Sentence(question string, result *models.QueryResult) string {
	if v, ok := result.SingleValue(); ok && len(result.Columns) == 1 {
		col := result.Columns[0]
		formatted := f.Cell(v, col)
		if isCurrencyColumn(col) && !isCountColumn(col) {
			// Prose currency gets a thousands separator, unlike table cells.
			formatted = Money(toFloat(v))
		}
		return fmt.Sprintf("The %s is %s.", strings.ReplaceAll(col, "_", " "), formatted)
	}
	return f.Table(result.Columns, result.Rows)
}

// Money renders a currency amount for prose with two decimals and a
// thousands separator: 45299.5 becomes "$45,299.50".
func Money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func isPercentColumn(column string) bool {
	return hasToken(column, percentTokens)
}

func isCurrencyColumn(column string) bool {
	return hasToken(column, currencyTokens) && !isCountColumn(column)
}

func isCountColumn(column string) bool {
	return hasToken(column, countTokens)
}

func hasToken(column string, tokens []string) bool {
	c := strings.ToLower(column)
	for _, t := range tokens {
		if strings.Contains(c, t) {
			return true
		}
	}
	return false
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func toFloat(v interface{}) float64 {
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
