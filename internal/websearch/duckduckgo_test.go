package websearch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storechat/storechat/internal/websearch"
)

func TestSearch_AbstractAndTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format param = %q, want json", got)
		}
		if got := r.URL.Query().Get("q"); got != "customer lifetime value" {
			t.Errorf("q param = %q", got)
		}
		w.Write([]byte(`{
			"Heading": "Customer lifetime value",
			"Abstract": "CLV is a prediction of the net profit from a customer relationship.",
			"AbstractURL": "https://en.wikipedia.org/wiki/Customer_lifetime_value",
			"RelatedTopics": [
				{"Text": "Retention marketing", "FirstURL": "https://duckduckgo.com/Retention_marketing"},
				{"Text": "", "FirstURL": "https://duckduckgo.com/empty"},
				{"Text": "Churn rate", "FirstURL": "https://duckduckgo.com/Churn_rate"}
			]
		}`))
	}))
	defer srv.Close()

	c := websearch.New(websearch.WithEndpoint(srv.URL))
	results, err := c.Search(context.Background(), "customer lifetime value", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Title != "Customer lifetime value" {
		t.Errorf("first result title = %q", results[0].Title)
	}
	if results[1].Title != "Retention marketing" {
		t.Errorf("second result title = %q, want topic title from URL", results[1].Title)
	}
}

func TestSearch_EmptyAnswerGivesNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Heading":"","Abstract":"","RelatedTopics":[]}`))
	}))
	defer srv.Close()

	c := websearch.New(websearch.WithEndpoint(srv.URL))
	results, err := c.Search(context.Background(), "nothing known", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() returned %d results, want 0", len(results))
	}
}

func TestSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := websearch.New(websearch.WithEndpoint(srv.URL))
	if _, err := c.Search(context.Background(), "anything", 5); err == nil {
		t.Error("Search() on upstream 502 succeeded, want error")
	}
}
