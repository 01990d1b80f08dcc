package sqlsafety

import (
	"strings"
	"testing"
)

func TestValidate_Classification(t *testing.T) {
	v := New()
	tests := []struct {
		sql       string
		wantKind  StatementKind
		wantValid bool
	}{
		{"SELECT COUNT(*) FROM customers", KindSelect, true},
		{"select name from products limit 5", KindSelect, true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", KindUnknown, false},
		{"SELECT 1;", KindSelect, true},
		{"INSERT INTO orders VALUES (1)", KindInsert, true},
		{"UPDATE products SET price = 0", KindUpdate, true},
		{"DELETE FROM customers", KindDelete, true},
		{"DROP TABLE customers", KindDDL, true},
		{"TRUNCATE orders", KindDDL, true},
		{"", KindUnknown, false},
		{"   ", KindUnknown, false},
		{"EXPLAIN SELECT 1", KindUnknown, false},
		{"SELECT 1; SELECT 2", KindSelect, false},
	}
	for _, tt := range tests {
		got := v.Validate(tt.sql)
		if got.Kind != tt.wantKind || got.IsValid != tt.wantValid {
			t.Errorf("Validate(%q) = {valid:%v kind:%s}, want {valid:%v kind:%s}",
				tt.sql, got.IsValid, got.Kind, tt.wantValid, tt.wantKind)
		}
	}
}

func TestValidate_Warnings(t *testing.T) {
	v := New()

	got := v.Validate("DELETE FROM customers")
	if len(got.Warnings) == 0 {
		t.Error("Validate(DELETE without WHERE) produced no warnings")
	}

	got = v.Validate("DELETE FROM customers WHERE id = 3")
	if len(got.Warnings) != 0 {
		t.Errorf("Validate(DELETE with WHERE) warnings = %v, want none", got.Warnings)
	}

	got = v.Validate("UPDATE products SET price = 0")
	if len(got.Warnings) == 0 {
		t.Error("Validate(UPDATE without WHERE) produced no warnings")
	}

	got = v.Validate("DROP TABLE customers")
	if len(got.Warnings) == 0 {
		t.Error("Validate(DROP TABLE) produced no warnings")
	}
}

func TestExecutionAllowed(t *testing.T) {
	v := New()
	if !v.Validate("SELECT 1").ExecutionAllowed() {
		t.Error("valid SELECT should be executable")
	}
	for _, sql := range []string{
		"DROP TABLE customers",
		"DELETE FROM customers WHERE id = 1",
		"UPDATE products SET price = 1 WHERE id = 1",
		"INSERT INTO t VALUES (1)",
		"",
		"SELECT 1; SELECT 2",
		"WITH t AS (SELECT customer_id FROM orders) SELECT COUNT(*) FROM t",
	} {
		if v.Validate(sql).ExecutionAllowed() {
			t.Errorf("Validate(%q).ExecutionAllowed() = true, want false", sql)
		}
	}
}

func TestSafe(t *testing.T) {
	v := New()
	if err := v.Safe("SELECT created_at FROM orders LIMIT 5"); err != nil {
		// "created_at" contains "create" but not as a standalone word.
		t.Fatalf("Safe() error = %v, want nil", err)
	}

	err := v.Safe("SELECT * FROM customers WHERE name = (SELECT drop FROM x)")
	if err == nil || !strings.Contains(err.Error(), "dangerous keyword") {
		t.Errorf("Safe(embedded dangerous word) = %v, want dangerous keyword error", err)
	}

	if err := v.Safe("DROP TABLE customers"); err == nil {
		t.Error("Safe(DROP) = nil, want error")
	}

	if err := v.Safe("WITH t AS (SELECT 1) SELECT * FROM t"); err == nil {
		t.Error("Safe(leading WITH) = nil, want error")
	}
}

func TestEnforceLimit(t *testing.T) {
	v := New()
	tests := []struct {
		sql  string
		max  int
		want string
	}{
		{"SELECT * FROM products", 100, "SELECT * FROM products LIMIT 100"},
		{"SELECT * FROM products;", 100, "SELECT * FROM products LIMIT 100"},
		{"SELECT * FROM products LIMIT 10", 100, "SELECT * FROM products LIMIT 10"},
		{"SELECT * FROM products LIMIT 5000", 100, "SELECT * FROM products LIMIT 100"},
		{"SELECT * FROM products", 0, "SELECT * FROM products LIMIT 100"},
		{"SELECT * FROM products LIMIT 5 OFFSET 10", 100, "SELECT * FROM products LIMIT 5 OFFSET 10"},
		{"SELECT * FROM products LIMIT 5000 OFFSET 10", 100, "SELECT * FROM products LIMIT 100 OFFSET 10"},
	}
	for _, tt := range tests {
		if got := v.EnforceLimit(tt.sql, tt.max); got != tt.want {
			t.Errorf("EnforceLimit(%q, %d) = %q, want %q", tt.sql, tt.max, got, tt.want)
		}
	}
}
