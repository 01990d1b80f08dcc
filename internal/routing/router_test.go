package routing_test

import (
	"context"
	"strings"
	"testing"

	"github.com/storechat/storechat/internal/routing"
	"github.com/storechat/storechat/pkg/models"
)

// stubSQL returns a canned resolution regardless of the question.
type stubSQL struct {
	res *models.SQLResolution
}

func (s stubSQL) Answer(context.Context, string) *models.SQLResolution { return s.res }

func TestRoute_DatabaseAnswerWins(t *testing.T) {
	r := routing.New(stubSQL{res: &models.SQLResolution{
		Answer:   "There are 7 customers in the database.",
		SQL:      "SELECT COUNT(*) FROM customers",
		Strategy: models.StrategyPattern,
		Resolved: true,
	}})

	d := r.Route(context.Background(), "How many customers do we have?")
	if d.Kind != models.RouteDatabase {
		t.Fatalf("Route() kind = %q, want %q", d.Kind, models.RouteDatabase)
	}
	if d.Resolution == nil || d.Resolution.SQL == "" {
		t.Fatal("Route() dropped the resolution on the database route")
	}
	if !strings.Contains(d.Instruction, "There are 7 customers") {
		t.Errorf("Route() instruction missing the database answer: %q", d.Instruction)
	}
}

func TestRoute_ConceptualWhenDatabaseFails(t *testing.T) {
	// Resolved=false means the pipeline found nothing usable.
	r := routing.New(stubSQL{res: &models.SQLResolution{
		Answer:   "I can help you with database queries about customers, orders, products, and sales. Please ask a specific question about the data.",
		Strategy: models.StrategyPattern,
	}})

	d := r.Route(context.Background(), "What is customer lifetime value?")
	if d.Kind != models.RouteConceptual {
		t.Errorf("Route() kind = %q, want %q", d.Kind, models.RouteConceptual)
	}
}

func TestRoute_ConceptualPhrasingLosesToData(t *testing.T) {
	r := routing.New(stubSQL{res: &models.SQLResolution{
		Answer:   "The total revenue is $45,299.50.",
		SQL:      "SELECT SUM(total_amount) FROM orders",
		Strategy: models.StrategyPattern,
		Resolved: true,
	}})

	d := r.Route(context.Background(), "What is the total revenue?")
	if d.Kind != models.RouteDatabase {
		t.Errorf("Route() kind = %q, want %q", d.Kind, models.RouteDatabase)
	}
}

func TestRoute_BusinessKeywordsWithoutData(t *testing.T) {
	r := routing.New(stubSQL{res: nil})

	d := r.Route(context.Background(), "How should I improve retention next quarter?")
	if d.Kind != models.RouteBusiness {
		t.Errorf("Route() kind = %q, want %q", d.Kind, models.RouteBusiness)
	}
}

func TestRoute_DefaultsToDocument(t *testing.T) {
	r := routing.New(stubSQL{res: nil})

	d := r.Route(context.Background(), "Summarize the shipping policy for me")
	if d.Kind != models.RouteDocument {
		t.Errorf("Route() kind = %q, want %q", d.Kind, models.RouteDocument)
	}
	if d.Instruction == "" {
		t.Error("Route() document route has no base instruction")
	}
}
