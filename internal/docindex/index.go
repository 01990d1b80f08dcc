package docindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/vectorstore"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// Index implements contracts.DocumentIndex: chunk on ingest, embed, upsert;
// embed the query and rank by similarity on search.
type Index struct {
	embedder contracts.Embedder
	driver   vectorstore.Driver
	chunker  ChunkerConfig
}

func New(embedder contracts.Embedder, driver vectorstore.Driver, chunker ChunkerConfig) *Index {
	return &Index{embedder: embedder, driver: driver, chunker: chunker}
}

// Ingest splits one document into chunks, embeds them and stores them.
// Replaces any previous chunks of the same document.
func (ix *Index) Ingest(ctx context.Context, doc models.Document) (int, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	texts := ChunkText(doc.Content, ix.chunker)

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embed document %s: got %d vectors for %d chunks", doc.ID, len(vectors), len(texts))
	}

	if err := ix.driver.DeleteDocument(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("replace document %s: %w", doc.ID, err)
	}

	now := time.Now()
	chunks := make([]models.DocChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.DocChunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, i),
			DocumentID: doc.ID,
			Content:    text,
			Source:     doc.Source,
			Category:   doc.Category,
			Metadata:   doc.Metadata,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	if err := ix.driver.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert chunks for %s: %w", doc.ID, err)
	}

	log.Info().Str("document", doc.ID).Int("chunks", len(chunks)).Msg("Document ingested")
	return len(chunks), nil
}

// Search embeds the query and returns the topK most similar chunks.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	return ix.driver.Search(ctx, vectors[0], topK)
}
