// Package sqlextract digs a usable SELECT statement out of raw LLM output.
// Models wrap SQL in markdown fences, agent scratchpads, or prose; the
// extractor tries the most structured shape first and degrades gracefully.
package sqlextract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedRe      = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	fencedBareRe  = regexp.MustCompile("(?is)```\\s*((?:SELECT|WITH).*?)\\s*```")
	actionInputRe = regexp.MustCompile(`(?i)action input:\s*`)
	statementRe   = regexp.MustCompile(`(?is)\b((?:SELECT|WITH)\b.*?)(;|$)`)
)

// Extractor pulls SQL statements from model output.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the first SELECT/WITH statement found in raw, without a
// trailing semicolon. Extraction order: fenced ```sql block, "Action Input:"
// marker, bare statement scan. Clean SQL passes through unchanged.
func (e *Extractor) Extract(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("no SQL found in empty output")
	}

	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		return e.finish(m[1])
	}
	if m := fencedBareRe.FindStringSubmatch(raw); m != nil {
		return e.finish(m[1])
	}

	// Agent scratchpad: everything after the last "Action Input:" marker.
	if loc := actionInputRe.FindAllStringIndex(raw, -1); loc != nil {
		tail := raw[loc[len(loc)-1][1]:]
		if m := statementRe.FindStringSubmatch(tail); m != nil {
			return e.finish(m[1])
		}
	}

	if m := statementRe.FindStringSubmatch(raw); m != nil {
		return e.finish(m[1])
	}

	return "", fmt.Errorf("no SQL found in output")
}

// countTables is the closed set of entity shapes Infer may bridge,
// keyed by the keyword that names them in a question.
var countTables = []struct{ keyword, table string }{
	{"customer", "customers"},
	{"order", "orders"},
	{"product", "products"},
	{"categor", "categories"},
}

var numberRe = regexp.MustCompile(`\b\d+\b`)

// Infer is a last-resort bridge: when a response states a count for a
// "how many X" question but no SQL is recoverable, synthesize the
// equivalent COUNT query. It covers only the enumerated entity tables
// and must not grow into a general NL2SQL mechanism.
func (e *Extractor) Infer(question, response string) (string, bool) {
	q := strings.ToLower(question)
	if !strings.Contains(q, "how many") || !numberRe.MatchString(response) {
		return "", false
	}
	for _, ct := range countTables {
		if strings.Contains(q, ct.keyword) {
			return "SELECT COUNT(*) AS count FROM " + ct.table, true
		}
	}
	return "", false
}

// finish normalizes and structurally checks an extracted candidate.
func (e *Extractor) finish(candidate string) (string, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(candidate), ";"))
	s = repair(s)

	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("extracted text does not start with SELECT")
	}
	if err := checkBalance(s); err != nil {
		return "", fmt.Errorf("malformed SQL: %w", err)
	}
	return s, nil
}

// repair trims trailing unbalanced close-parens, a shape small models
// produce when they close a fence and a subquery at once.
func repair(s string) string {
	for strings.HasSuffix(s, ")") && parenDepth(s) < 0 {
		s = strings.TrimSpace(strings.TrimSuffix(s, ")"))
	}
	return s
}

func parenDepth(s string) int {
	depth := 0
	inSingle, inDouble := false, false
	for _, r := range s {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case r == '(':
			depth++
		case r == ')':
			depth--
		}
	}
	return depth
}

func checkBalance(s string) error {
	if d := parenDepth(s); d != 0 {
		return fmt.Errorf("unbalanced parentheses (depth %d)", d)
	}
	singles, doubles := 0, 0
	for _, r := range s {
		switch r {
		case '\'':
			singles++
		case '"':
			doubles++
		}
	}
	if singles%2 != 0 {
		return fmt.Errorf("unbalanced single quotes")
	}
	if doubles%2 != 0 {
		return fmt.Errorf("unbalanced double quotes")
	}
	return nil
}
