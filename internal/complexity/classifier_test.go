package complexity

import (
	"testing"

	"github.com/storechat/storechat/pkg/models"
)

func TestClassify_Levels(t *testing.T) {
	c := New()
	tests := []struct {
		question string
		want     models.ComplexityLevel
	}{
		{"How many customers do we have?", models.ComplexityLow},
		{"Show me all products", models.ComplexityLow},
		{"What percentage of revenue comes from electronics?", models.ComplexityMedium},
		{"Show the breakdown of sales by category", models.ComplexityMedium},
	}
	for _, tt := range tests {
		got := c.Classify(tt.question)
		if got.Level != tt.want {
			t.Errorf("Classify(%q).Level = %s (score %d, factors %v), want %s",
				tt.question, got.Level, got.Score, got.Factors, tt.want)
		}
	}
}

func TestClassify_WeightedLifetimeValue(t *testing.T) {
	c := New()
	got := c.Classify("What is the weighted average customer lifetime value, broken down by category?")
	// cte_required (weighted), advanced_metrics (lifetime value) and
	// conditional_logic ("if" inside "lifetime") all fire.
	if got.Level != models.ComplexityHigh && got.Level != models.ComplexityUltraHigh {
		t.Errorf("Classify() level = %s (score %d, factors %v), want high or ultra-high",
			got.Level, got.Score, got.Factors)
	}
}

func TestClassify_ScoreMatchesFactors(t *testing.T) {
	c := New()
	got := c.Classify("Rank categories by revenue contribution percentage, if possible")
	if got.Score != len(got.Factors) {
		t.Errorf("score %d does not match factor count %d (%v)", got.Score, len(got.Factors), got.Factors)
	}
	if got.Score == 0 {
		t.Error("expected at least one factor to fire")
	}
}

func TestEnhanced(t *testing.T) {
	if Enhanced(models.ComplexityLow) || Enhanced(models.ComplexityMedium) {
		t.Error("low/medium should not route to the enhanced strategy")
	}
	if !Enhanced(models.ComplexityHigh) || !Enhanced(models.ComplexityUltraHigh) {
		t.Error("high/ultra-high should route to the enhanced strategy")
	}
}
