// Package server provides the public entry point for initializing the
// StoreChat service.
//
// This package exists in pkg/ (not internal/) so that embedders can
// compose the full server with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/api"
	"github.com/storechat/storechat/internal/api/handlers"
	"github.com/storechat/storechat/internal/chat"
	"github.com/storechat/storechat/internal/config"
	"github.com/storechat/storechat/internal/docindex"
	"github.com/storechat/storechat/internal/embeddings"
	"github.com/storechat/storechat/internal/generator"
	"github.com/storechat/storechat/internal/guardrails"
	"github.com/storechat/storechat/internal/nl2sql"
	"github.com/storechat/storechat/internal/retention"
	"github.com/storechat/storechat/internal/routing"
	"github.com/storechat/storechat/internal/store"
	"github.com/storechat/storechat/internal/telemetry"
	"github.com/storechat/storechat/internal/vectorstore"
	"github.com/storechat/storechat/internal/websearch"
	"github.com/storechat/storechat/pkg/contracts"
)

// Server holds the initialized StoreChat service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the chat persistence backend.
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	// Janitor sweeps idle sessions when retention is configured.
	Janitor *retention.Janitor

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Persistence. Postgres serves both chat history and the commerce
	// schema; without a DSN we fall back to the in-memory store and the
	// static demo schema.
	var (
		chatStore store.Store
		commerce  contracts.CommerceReader
	)
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, store.PostgresOptions{
			MaxConnections: cfg.Database.MaxConnections,
			RowLimit:       cfg.Database.QueryRowLimit,
			QueryTimeout:   cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		chatStore = pg
		commerce = pg
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		chatStore = store.NewMemoryStore("")
		commerce = store.NewDemoCommerce()
		log.Info().Msg("In-memory store initialized, no commerce database configured")
	}

	gen, err := buildGenerator(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	var vector vectorstore.Driver
	if cfg.Database.URL != "" {
		pgv, err := vectorstore.NewPgvectorStore(ctx, cfg.Database.URL, embedder.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("init pgvector: %w", err)
		}
		vector = pgv
		log.Info().Int("dimensions", embedder.Dimensions()).Msg("pgvector store initialized")
	} else {
		vector = vectorstore.NewEmbeddedStore()
		log.Info().Msg("Embedded vector store initialized")
	}

	docs := docindex.New(embedder, vector, docindex.DefaultChunkerConfig())

	var web contracts.WebSearcher
	if cfg.Search.WebEnabled {
		web = websearch.New()
		log.Info().Msg("Web search enabled")
	}

	pipeline := nl2sql.New(commerce, gen, nl2sql.Options{
		Model:          cfg.LLM.Model,
		AgentTimeout:   cfg.LLM.AgentTimeout,
		AgentMaxTurns:  cfg.LLM.AgentMaxTurns,
		RefineAttempts: cfg.LLM.RefineAttempts,
		RowLimit:       cfg.Database.QueryRowLimit,
	})

	orch := chat.New(
		chatStore,
		routing.New(pipeline),
		gen,
		docs,
		web,
		guardrails.New(),
		chat.Options{
			SearchTopK: cfg.Search.TopK,
			MinScore:   cfg.Search.MinScore,
			WebEnabled: cfg.Search.WebEnabled,
		},
	)

	h := &handlers.Handlers{
		Store:        chatStore,
		Orchestrator: orch,
		Docs:         docs,
		Web:          web,
		Commerce:     commerce,
		Vector:       vector,
		Version:      cfg.Version,
	}

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Store:        chatStore,
		Port:         cfg.Port,
		Janitor:      retention.NewJanitor(chatStore, cfg.Retention.SessionTTL, cfg.Retention.SweepInterval),
		ShutdownFunc: shutdown,
	}, nil
}

func buildGenerator(cfg config.LLMConfig) (contracts.Generator, error) {
	var drivers []generator.Driver
	for _, name := range strings.Split(cfg.Drivers, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "ollama":
			drivers = append(drivers, generator.NewOllama(cfg.OllamaURL, cfg.Model))
		case "openai":
			if cfg.OpenAIKey == "" {
				log.Warn().Msg("Skipping openai driver, OPENAI_API_KEY not set")
				continue
			}
			drivers = append(drivers, generator.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.Model))
		case "anthropic":
			if cfg.AnthropicKey == "" {
				log.Warn().Msg("Skipping anthropic driver, ANTHROPIC_API_KEY not set")
				continue
			}
			drivers = append(drivers, generator.NewAnthropic(cfg.AnthropicKey, cfg.Model))
		case "":
		default:
			return nil, fmt.Errorf("unknown LLM driver %q", name)
		}
	}
	return generator.NewRouter(drivers...)
}

func buildEmbedder(cfg config.EmbeddingConfig) (contracts.Embedder, error) {
	switch strings.ToLower(cfg.Driver) {
	case "ollama", "":
		return embeddings.NewOllamaDriver(cfg.OllamaURL, cfg.Model), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai embedding driver requires OPENAI_API_KEY")
		}
		return embeddings.NewOpenAIDriver(cfg.OpenAIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding driver %q", cfg.Driver)
	}
}
