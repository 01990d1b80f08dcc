// Package complexity scores a natural-language question on structural
// signals to pick an NL2SQL strategy. The keyword lists are deliberately
// simple triage heuristics; a question scored low that turns out hard
// still degrades through the normal fallback chain.
package complexity

import (
	"strings"

	"github.com/storechat/storechat/pkg/models"
)

// factor is one independent boolean signal.
type factor struct {
	name  string
	match func(q string) bool
}

var factors = []factor{
	{"cte_required", anyOf("weighted", "lifetime value", "clv", "breakdown")},
	{"window_functions", anyOf("percentage", "rank", "growth rate", "running total")},
	{"multiple_aggregations", multipleAggregations},
	{"business_logic", anyOf("contribute more than", "above average", "high-value", "segmentation")},
	{"multi_step", multiStep},
	// Plain substrings on purpose: "if" also fires inside "lifetime",
	// which keeps known-hard CLV questions on the enhanced path.
	{"conditional_logic", anyOf("if", "when", "case", "conditional")},
	{"advanced_metrics", anyOf("lifetime value", "revenue contribution", "customer segmentation", "weighted average")},
}

// Classifier scores questions.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify counts matching signals and maps the count to a level.
func (c *Classifier) Classify(question string) models.ComplexityScore {
	q := strings.ToLower(question)

	score := models.ComplexityScore{}
	for _, f := range factors {
		if f.match(q) {
			score.Score++
			score.Factors = append(score.Factors, f.name)
		}
	}

	switch {
	case score.Score >= 4:
		score.Level = models.ComplexityUltraHigh
	case score.Score == 3:
		score.Level = models.ComplexityHigh
	case score.Score >= 1:
		score.Level = models.ComplexityMedium
	default:
		score.Level = models.ComplexityLow
	}
	return score
}

// Enhanced reports whether the level routes to the multi-step strategy.
func Enhanced(level models.ComplexityLevel) bool {
	return level == models.ComplexityHigh || level == models.ComplexityUltraHigh
}

func anyOf(terms ...string) func(string) bool {
	return func(q string) bool {
		for _, t := range terms {
			if strings.Contains(q, t) {
				return true
			}
		}
		return false
	}
}

// multipleAggregations fires when aggregate words occur more than twice
// in total.
func multipleAggregations(q string) bool {
	n := strings.Count(q, "average") + strings.Count(q, "sum") + strings.Count(q, "count")
	return n > 2
}

// multiStep fires on more than three comma-separated segments.
func multiStep(q string) bool {
	return len(strings.Split(q, ",")) > 3
}
