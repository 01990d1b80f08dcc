// Package contracts defines the interfaces between StoreChat's pipeline
// stages. Handlers and the orchestrator depend on these, never on concrete
// drivers, so every stage can be swapped for a fake in tests.
package contracts

import (
	"context"

	"github.com/storechat/storechat/pkg/models"
)

// ── Text Generation ─────────────────────────────────────────

// GenerateRequest is one completion call to an LLM driver.
type GenerateRequest struct {
	Model       string
	System      string
	Messages    []models.Message
	MaxTokens   int
	Temperature float64
}

// GenerateResult is the driver's answer plus accounting.
type GenerateResult struct {
	Text         string
	Driver       string
	Model        string
	InputTokens  int
	OutputTokens int
}

// StreamSink receives incremental completion text. Implementations must be
// safe to call from the driver's read loop goroutine.
type StreamSink func(delta string) error

// Generator produces completions. Implemented by provider drivers and by
// the fallback router that chains them.
type Generator interface {
	// Generate blocks until the full completion is available.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Stream delivers the completion incrementally through sink and
	// returns the assembled result when the stream ends.
	Stream(ctx context.Context, req GenerateRequest, sink StreamSink) (*GenerateResult, error)
}

// ── Embeddings ──────────────────────────────────────────────

// Embedder turns text into vectors for the document index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

// ── Document Index ──────────────────────────────────────────

// DocumentIndex is the retrieval side of the knowledge base.
type DocumentIndex interface {
	Ingest(ctx context.Context, doc models.Document) (chunks int, err error)
	Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error)
}

// ── Relational Store ────────────────────────────────────────

// CommerceReader executes validated read-only SQL against the commerce
// schema and exposes its structure for prompt building.
type CommerceReader interface {
	ExecuteSelect(ctx context.Context, sql string) (*models.QueryResult, error)
	Schema(ctx context.Context) (*models.DatabaseSchema, error)
}

// ── Web Search ──────────────────────────────────────────────

// WebSearcher looks up public context for questions the knowledge base
// cannot answer.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.WebResult, error)
}

// ── Guardrails ──────────────────────────────────────────────

// InputScreen checks an inbound chat message before any model call.
type InputScreen interface {
	Screen(ctx context.Context, message string) (*models.ScreenVerdict, error)
}
