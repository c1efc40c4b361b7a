package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

// chunkInsertBatch keeps multi-row inserts below the 65535 bind parameter limit.
const chunkInsertBatch = 500

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, chunk_index, content, token_count, point_id, embedding_model
FROM document_chunks
WHERE document_id = $1
ORDER BY chunk_index
`, documentID)
	if err != nil {
		return nil, wrapConnErr("list chunks", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0)
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.DocumentID, &c.Index, &c.Content, &c.TokenCount, &c.PointID, &c.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return wrapConnErr("delete chunks", err)
	}
	return nil
}

// InsertBatch writes all chunks in one transaction.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapConnErr("begin chunk tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for start := 0; start < len(chunks); start += chunkInsertBatch {
		end := min(start+chunkInsertBatch, len(chunks))
		query, args := buildChunkInsert(chunks[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return wrapConnErr("insert chunks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapConnErr("commit chunk tx", err)
	}
	return nil
}

func buildChunkInsert(chunks []domain.Chunk) (string, []any) {
	const cols = 6
	var b strings.Builder
	b.WriteString(`INSERT INTO document_chunks (document_id, chunk_index, content, token_count, point_id, embedding_model) VALUES `)
	args := make([]any, 0, len(chunks)*cols)
	for i, c := range chunks {
		if i > 0 {
			b.WriteString(",")
		}
		base := i * cols
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, c.DocumentID, c.Index, c.Content, c.TokenCount, c.PointID, c.EmbeddingModel)
	}
	return b.String(), args
}
