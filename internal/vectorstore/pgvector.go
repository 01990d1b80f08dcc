package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/models"
)

// PgvectorStore implements Driver on PostgreSQL with the pgvector
// extension. The database must have pgvector installed.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore creates a pgvector-backed chunk store.
// It creates the required table and index if they don't exist.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS doc_chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_doc_chunks_document ON doc_chunks (document_id);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

func (s *PgvectorStore) Upsert(ctx context.Context, chunks []models.DocChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// Batch insert with ON CONFLICT
	var sb strings.Builder
	sb.WriteString(`INSERT INTO doc_chunks (id, document_id, content, source, category, metadata, embedding, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(chunks)*8)
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*8 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		metadata := c.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		args = append(args, id, c.DocumentID, c.Content, c.Source, c.Category, metadata, pgvectorArray(c.Embedding), created)
	}

	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		content = EXCLUDED.content,
		source = EXCLUDED.source,
		category = EXCLUDED.category,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

func (s *PgvectorStore) Search(ctx context.Context, vector []float64, topK int) ([]models.SearchHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, source, category, metadata, created_at,
			1 - (embedding <=> $1) AS score
		FROM doc_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvectorArray(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var chunk models.DocChunk
		var score float64
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.Source, &chunk.Category, &chunk.Metadata, &chunk.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		hits = append(hits, models.SearchHit{Chunk: chunk, Score: score})
	}
	return hits, rows.Err()
}

func (s *PgvectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE document_id = $1`, documentID)
	return err
}

func (s *PgvectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM doc_chunks`).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
