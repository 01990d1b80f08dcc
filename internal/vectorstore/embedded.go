// Package vectorstore stores embedded document chunks and answers
// similarity queries. Two drivers ship: embedded (in-memory brute-force
// cosine search, for development and small corpora) and pgvector.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/models"
)

// Driver is the chunk storage interface behind the document index.
type Driver interface {
	Kind() string
	Upsert(ctx context.Context, chunks []models.DocChunk) error
	Search(ctx context.Context, vector []float64, topK int) ([]models.SearchHit, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}

// DefaultMaxChunks caps the embedded store.
const DefaultMaxChunks = 50_000

// EmbeddedStore is a lightweight in-memory chunk store using brute-force
// cosine similarity search. Suitable for development and small knowledge
// bases; use pgvector for anything larger.
type EmbeddedStore struct {
	mu        sync.RWMutex
	chunks    map[string]*models.DocChunk
	maxChunks int
}

// EmbeddedOption configures the embedded store.
type EmbeddedOption func(*EmbeddedStore)

// WithMaxChunks sets the chunk cap (default 50K).
func WithMaxChunks(max int) EmbeddedOption {
	return func(s *EmbeddedStore) { s.maxChunks = max }
}

// NewEmbeddedStore creates an in-memory chunk store.
func NewEmbeddedStore(opts ...EmbeddedOption) *EmbeddedStore {
	s := &EmbeddedStore{
		chunks:    make(map[string]*models.DocChunk),
		maxChunks: DefaultMaxChunks,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_chunks", s.maxChunks).Msg("Embedded vector store initialized")
	return s
}

func (s *EmbeddedStore) Kind() string { return "embedded" }

func (s *EmbeddedStore) Upsert(_ context.Context, chunks []models.DocChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCount := 0
	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			newCount++
		}
	}
	total := len(s.chunks) + newCount
	if total > s.maxChunks {
		return fmt.Errorf("embedded vector store capacity exceeded: %d > %d (switch to pgvector)", total, s.maxChunks)
	}

	now := time.Now()
	for _, c := range chunks {
		cp := c
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.chunks[cp.ID] = &cp
	}
	return nil
}

func (s *EmbeddedStore) Search(_ context.Context, vector []float64, topK int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []models.SearchHit
	for _, c := range s.chunks {
		if len(c.Embedding) != len(vector) {
			continue
		}
		hits = append(hits, models.SearchHit{Chunk: *c, Score: cosineSimilarity(vector, c.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *EmbeddedStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *EmbeddedStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *EmbeddedStore) HealthCheck(context.Context) error {
	return nil // always healthy, it's in-memory
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
