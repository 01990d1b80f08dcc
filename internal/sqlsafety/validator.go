// Package sqlsafety is the last gate before model-written SQL touches the
// database. Every candidate any pipeline stage produces goes through
// Validate, and the execution step runs only statements the verdict marks
// as a valid single SELECT.
package sqlsafety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultRowLimit caps result sets when the statement carries no LIMIT.
const DefaultRowLimit = 100

// StatementKind classifies a SQL statement by its leading keyword.
type StatementKind string

const (
	KindSelect  StatementKind = "select"
	KindInsert  StatementKind = "insert"
	KindUpdate  StatementKind = "update"
	KindDelete  StatementKind = "delete"
	KindDDL     StatementKind = "ddl"
	KindUnknown StatementKind = "unknown"
)

// Verdict is the validator's decision for one statement.
type Verdict struct {
	IsValid  bool
	Kind     StatementKind
	Warnings []string
	Error    string
}

// ExecutionAllowed reports whether the natural-language path may run this
// statement. Only a valid single SELECT qualifies.
func (v Verdict) ExecutionAllowed() bool {
	return v.IsValid && v.Kind == KindSelect
}

// dangerous keywords scanned as standalone words. Statements from the
// model path are refused execution when any appears, whatever the kind.
var dangerousKeywords = []string{
	"drop", "delete", "insert", "update", "alter",
	"create", "truncate", "grant", "revoke", "exec",
}

var (
	dangerousRe    = regexp.MustCompile(`(?i)\b(` + strings.Join(dangerousKeywords, "|") + `)\b`)
	limitRe        = regexp.MustCompile(`(?is)\blimit\s+(\d+)(\s+offset\s+\d+)?\s*$`)
	dropObjectRe   = regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`)
	deleteNoFromRe = regexp.MustCompile(`(?i)\bdelete\s+from\b`)
	whereRe        = regexp.MustCompile(`(?i)\bwhere\b`)
	updateRe       = regexp.MustCompile(`(?i)^\s*update\b`)
)

// Validator screens SQL statements before execution.
type Validator struct {
	RowLimit int
}

// New returns a Validator with the default row limit.
func New() *Validator {
	return &Validator{RowLimit: DefaultRowLimit}
}

// Validate classifies the statement and flags risky patterns. It never
// panics and never errors; callers branch on the Verdict.
func (v *Validator) Validate(sql string) Verdict {
	s := strings.TrimSpace(sql)
	if s == "" {
		return Verdict{Kind: KindUnknown, Error: "empty statement"}
	}

	verdict := Verdict{IsValid: true, Kind: classify(s)}
	if verdict.Kind == KindUnknown {
		verdict.IsValid = false
		verdict.Error = "unrecognized statement start"
	}

	// A trailing semicolon is fine; an interior one means a second statement.
	if i := strings.Index(strings.TrimRight(s, "; \t\n"), ";"); i >= 0 {
		verdict.IsValid = false
		verdict.Error = "multiple statements not allowed"
	}

	if dropObjectRe.MatchString(s) {
		verdict.Warnings = append(verdict.Warnings, "destructive DROP detected")
	}
	if deleteNoFromRe.MatchString(s) && !whereRe.MatchString(s) {
		verdict.Warnings = append(verdict.Warnings, "DELETE without WHERE affects every row")
	}
	if updateRe.MatchString(s) && !whereRe.MatchString(s) {
		verdict.Warnings = append(verdict.Warnings, "UPDATE without WHERE affects every row")
	}

	return verdict
}

// Safe is the execution-path check: a valid single SELECT with no
// dangerous keyword anywhere in the text. Model-written SQL must pass
// this exact check before ExecuteSelect sees it.
func (v *Validator) Safe(sql string) error {
	verdict := v.Validate(sql)
	if !verdict.ExecutionAllowed() {
		if verdict.Error != "" {
			return fmt.Errorf("statement rejected: %s", verdict.Error)
		}
		return fmt.Errorf("only SELECT statements may be executed, got %s", verdict.Kind)
	}
	if m := dangerousRe.FindString(sql); m != "" {
		return fmt.Errorf("dangerous keyword %q not allowed", strings.ToLower(m))
	}
	return nil
}

// EnforceLimit guarantees the statement reads at most max rows: it appends
// a LIMIT when absent and clamps an existing larger one. max <= 0 falls
// back to the validator's RowLimit.
func (v *Validator) EnforceLimit(sql string, max int) string {
	if max <= 0 {
		max = v.RowLimit
	}
	s := strings.TrimRight(strings.TrimSpace(sql), ";")

	if m := limitRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			return limitRe.ReplaceAllString(s, fmt.Sprintf("LIMIT %d${2}", max))
		}
		return s
	}
	return fmt.Sprintf("%s LIMIT %d", s, max)
}

func classify(s string) StatementKind {
	first := strings.ToLower(firstWord(s))
	switch first {
	case "select":
		return KindSelect
	case "insert":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	case "create", "drop", "alter", "truncate", "grant", "revoke":
		return KindDDL
	default:
		return KindUnknown
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
