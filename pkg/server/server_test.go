package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storechat/storechat/internal/config"
	"github.com/storechat/storechat/pkg/server"
)

// DB-less configuration: in-memory store, embedded vectors, no telemetry
// export. Nothing here needs the network at init time.
func testConfig() *config.Config {
	return &config.Config{
		Port:    8080,
		Version: "test",
		LLM: config.LLMConfig{
			Drivers:   "ollama",
			Model:     "llama3.1:8b",
			OllamaURL: "http://localhost:11434",
		},
		Embedding: config.EmbeddingConfig{
			Driver:    "ollama",
			Model:     "nomic-embed-text",
			OllamaURL: "http://localhost:11434",
		},
	}
}

func TestNewWithConfig_Wiring(t *testing.T) {
	srv, err := server.NewWithConfig(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer srv.Store.Close()

	if srv.Handler == nil {
		t.Fatal("Handler is nil")
	}
	if srv.Janitor == nil {
		t.Fatal("Janitor is nil")
	}

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/version")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/v1/version = %d, want 200", resp.StatusCode)
	}
}

func TestNewWithConfig_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Drivers = "mystery"
	if _, err := server.NewWithConfig(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown LLM driver")
	}
}
