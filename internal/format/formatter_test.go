package format

import (
	"strings"
	"testing"

	"github.com/storechat/storechat/pkg/models"
)

func TestCell(t *testing.T) {
	f := New()
	tests := []struct {
		value  interface{}
		column string
		want   string
	}{
		{1234.5, "total_revenue", "$1234.50"},
		{1299.98, "category_revenue", "$1299.98"},
		{12.345, "revenue_percentage", "12.35%"},
		{100.0, "revenue_percentage", "100.00%"},
		{42, "count", "42"},
		{int64(7), "customer_count", "7"},
		{3.14159, "pi", "3.1416"},
		{2.5000, "score", "2.5"},
		{nil, "anything", "NULL"},
		{"Widget", "name", "Widget"},
		{5.0, "order_count", "5"},
		{19.99, "price", "$19.99"},
	}
	for _, tt := range tests {
		if got := f.Cell(tt.value, tt.column); got != tt.want {
			t.Errorf("Cell(%v, %q) = %q, want %q", tt.value, tt.column, got, tt.want)
		}
	}
}

func TestTable_Truncation(t *testing.T) {
	f := New()
	cols := []string{"id", "name"}
	rows := make([][]interface{}, 25)
	for i := range rows {
		rows[i] = []interface{}{i + 1, "item"}
	}

	table := f.Table(cols, rows)

	dataLines := 0
	for _, line := range strings.Split(table, "\n") {
		if strings.HasPrefix(line, "| ") && !strings.Contains(line, "---") && !strings.Contains(line, "id | name") {
			dataLines++
		}
	}
	if dataLines != DefaultMaxRows {
		t.Errorf("table has %d data rows, want %d", dataLines, DefaultMaxRows)
	}
	if !strings.Contains(table, "Showing first 10 of 25 rows") {
		t.Errorf("table missing truncation note:\n%s", table)
	}
}

func TestTable_NoTruncationNoteWhenSmall(t *testing.T) {
	f := New()
	table := f.Table([]string{"n"}, [][]interface{}{{1}, {2}})
	if strings.Contains(table, "Showing first") {
		t.Errorf("unexpected truncation note:\n%s", table)
	}
}

func TestTable_Empty(t *testing.T) {
	f := New()
	if got := f.Table([]string{"n"}, nil); got != "The query returned no results." {
		t.Errorf("Table(empty) = %q", got)
	}
}

func TestSentence_Scalar(t *testing.T) {
	f := New()
	result := &models.QueryResult{
		Columns:  []string{"total_revenue"},
		Rows:     [][]interface{}{{45299.5}},
		RowCount: 1,
	}
	got := f.Sentence("What is the total revenue?", result)
	if got != "The total revenue is $45,299.50." {
		t.Errorf("Sentence() = %q", got)
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{45299.5, "$45,299.50"},
		{1234.5, "$1,234.50"},
		{99, "$99.00"},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
