package docindex_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/storechat/storechat/internal/docindex"
	"github.com/storechat/storechat/internal/vectorstore"
	"github.com/storechat/storechat/pkg/models"
)

// wordCountEmbedder is a deterministic fake: vector = [len, vowels, spaces].
type wordCountEmbedder struct{}

func (wordCountEmbedder) Dimensions() int { return 3 }

func (wordCountEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		var vowels, spaces float64
		for _, r := range t {
			switch r {
			case 'a', 'e', 'i', 'o', 'u':
				vowels++
			case ' ':
				spaces++
			}
		}
		out[i] = []float64{float64(len(t)), vowels, spaces}
	}
	return out, nil
}

func TestChunkText_ShortTextIsOneChunk(t *testing.T) {
	chunks := docindex.ChunkText("a short policy note", docindex.DefaultChunkerConfig())
	if len(chunks) != 1 {
		t.Fatalf("ChunkText() produced %d chunks, want 1", len(chunks))
	}
}

func TestChunkText_RespectsChunkSize(t *testing.T) {
	text := strings.Repeat("Returns are accepted within 30 days. ", 40)
	cfg := docindex.ChunkerConfig{ChunkSize: 120, ChunkOverlap: 20}

	chunks := docindex.ChunkText(text, cfg)
	if len(chunks) < 2 {
		t.Fatalf("ChunkText() produced %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		// Overlap prepends up to ChunkOverlap runes plus a separator.
		if utf8.RuneCountInString(c) > cfg.ChunkSize+cfg.ChunkOverlap+2 {
			t.Errorf("chunk %d has %d runes, exceeds size budget", i, utf8.RuneCountInString(c))
		}
	}
}

func TestChunkText_OverlapCarriesTail(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 30)
	chunks := docindex.ChunkText(text, docindex.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 30})
	if len(chunks) < 2 {
		t.Fatalf("ChunkText() produced %d chunks, want several", len(chunks))
	}
	first := []rune(chunks[0])
	tail := string(first[len(first)-10:])
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("chunk 1 does not carry the tail of chunk 0: %q not in %q", tail, chunks[1][:40])
	}
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	ix := docindex.New(wordCountEmbedder{}, vectorstore.NewEmbeddedStore(), docindex.DefaultChunkerConfig())

	docs := []models.Document{
		{ID: "returns", Content: "Items can be returned within 30 days of delivery for a full refund.", Source: "policy"},
		{ID: "shipping", Content: "Standard shipping takes 3 to 5 business days within the country.", Source: "policy"},
	}
	for _, d := range docs {
		n, err := ix.Ingest(ctx, d)
		if err != nil {
			t.Fatalf("Ingest(%s) error = %v", d.ID, err)
		}
		if n < 1 {
			t.Fatalf("Ingest(%s) stored %d chunks, want at least 1", d.ID, n)
		}
	}

	hits, err := ix.Search(ctx, "Items can be returned within 30 days of delivery for a full refund.", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search() returned %d hits, want 1", len(hits))
	}
	if hits[0].Chunk.DocumentID != "returns" {
		t.Errorf("Search() top hit = %q, want %q", hits[0].Chunk.DocumentID, "returns")
	}
	if hits[0].Score <= 0.99 {
		t.Errorf("Search() identical text scored %.3f, want ~1", hits[0].Score)
	}
}

func TestIngest_ReplacesPreviousChunks(t *testing.T) {
	ctx := context.Background()
	driver := vectorstore.NewEmbeddedStore()
	ix := docindex.New(wordCountEmbedder{}, driver, docindex.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 0})

	long := strings.Repeat("first version of the document text. ", 10)
	if _, err := ix.Ingest(ctx, models.Document{ID: "doc", Content: long}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := ix.Ingest(ctx, models.Document{ID: "doc", Content: "short rewrite"}); err != nil {
		t.Fatalf("Ingest() second error = %v", err)
	}

	count, err := driver.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after re-ingest = %d, want 1", count)
	}
}
