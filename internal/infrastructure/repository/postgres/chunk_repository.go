package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

const insertBatchSize = 200

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// InsertChunks writes the rows of one generation in short per-batch
// transactions so large documents never hold one transaction open for the
// whole write. A failed batch leaves earlier batches behind as rows of a
// generation that never becomes active; DropGeneration removes them.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.insertChunkBatch(ctx, chunks[start:end], start); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) insertChunkBatch(ctx context.Context, batch []domain.Chunk, seqBase int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var b strings.Builder
	b.WriteString(`INSERT INTO chunks (id, document_id, generation, seq, page, content, content_normalized, embedding, created_at) VALUES `)

	args := make([]any, 0, len(batch)*9)
	for i, chunk := range batch {
		embedding, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		if i > 0 {
			b.WriteString(",")
		}
		base := i * 9
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args,
			chunk.ID, chunk.DocumentID, chunk.Generation, seqBase+i, chunk.PageNumber,
			chunk.Content, chunk.ContentNormalized, embedding, chunk.CreatedAt,
		)
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert chunk batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk batch: %w", err)
	}
	return nil
}

// GetByGeneration returns every chunk row of one generation in reading
// order. The index build reads from here, never from in-memory state, so
// the indexes always reflect exactly what was committed.
func (r *ChunkRepository) GetByGeneration(ctx context.Context, documentID, generation string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, generation, page, content, content_normalized, embedding, created_at
FROM chunks
WHERE document_id = $1 AND generation = $2
ORDER BY seq
`, documentID, generation)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var embedding []byte
		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Generation, &chunk.PageNumber,
			&chunk.Content, &chunk.ContentNormalized, &embedding, &chunk.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(embedding, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) DeleteGeneration(ctx context.Context, documentID, generation string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM chunks
WHERE document_id = $1 AND generation = $2
`, documentID, generation)
	if err != nil {
		return fmt.Errorf("delete chunk generation: %w", err)
	}
	return nil
}
