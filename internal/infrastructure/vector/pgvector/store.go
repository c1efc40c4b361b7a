// Package pgvector stores chunk embeddings in PostgreSQL with the pgvector
// extension, as an alternative to Qdrant.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

const schemaLockID int64 = 2026021002

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunk_embeddings (
	point_id TEXT PRIMARY KEY,
	document_id BIGINT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL DEFAULT '',
	department_id BIGINT NOT NULL DEFAULT 0,
	role_id BIGINT NOT NULL DEFAULT 0,
	embedding vector NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_document ON chunk_embeddings(document_id);
CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_acl ON chunk_embeddings(department_id, role_id);
`

// filterColumns whitelists the payload fields an AccessFilter may address.
var filterColumns = map[string]string{
	domain.FieldDepartmentID: "department_id",
	domain.FieldRoleID:       "role_id",
	"document_id":            "document_id",
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire vector schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute vector schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vector schema tx: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, p := range points {
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunk_embeddings (
	point_id, document_id, chunk_index, content, filename, file_path, file_type, department_id, role_id, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (point_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	chunk_index = EXCLUDED.chunk_index,
	content = EXCLUDED.content,
	filename = EXCLUDED.filename,
	file_path = EXCLUDED.file_path,
	file_type = EXCLUDED.file_type,
	department_id = EXCLUDED.department_id,
	role_id = EXCLUDED.role_id,
	embedding = EXCLUDED.embedding
`,
			p.ID, p.Payload.DocumentID, p.Payload.ChunkIndex, p.Payload.Content, p.Payload.Filename,
			p.Payload.FilePath, p.Payload.FileType, p.Payload.DepartmentID, p.Payload.RoleID,
			pgvector.NewVector(p.Vector),
		)
		if err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// Search ranks by cosine similarity (1 - cosine distance).
func (s *Store) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	scoreThreshold float64,
	filter domain.AccessFilter,
) ([]domain.RetrievedChunk, error) {
	args := []any{pgvector.NewVector(queryVector)}
	conds := make([]string, 0, len(filter.Must)+1)
	for _, clause := range filter.Must {
		column, ok := filterColumns[clause.Field]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "pgvector search", fmt.Errorf("unknown filter field %q", clause.Field))
		}
		if len(clause.Values) == 0 {
			conds = append(conds, "FALSE")
			continue
		}
		placeholders := make([]string, 0, len(clause.Values))
		for _, v := range clause.Values {
			args = append(args, v)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")))
	}
	if scoreThreshold > 0 {
		args = append(args, scoreThreshold)
		conds = append(conds, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
SELECT point_id, document_id, chunk_index, filename, file_path, content, department_id, role_id,
	1 - (embedding <=> $1) AS score
FROM chunk_embeddings
%s
ORDER BY embedding <=> $1
LIMIT $%d
`, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedChunk, 0)
	for rows.Next() {
		var c domain.RetrievedChunk
		if err := rows.Scan(&c.PointID, &c.DocumentID, &c.ChunkIndex, &c.Filename, &c.FilePath, &c.Content,
			&c.DepartmentID, &c.RoleID, &c.Score); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar chunks: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	args := make([]any, len(pointIDs))
	placeholders := make([]string, len(pointIDs))
	for i, id := range pointIDs {
		args[i] = id
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := `DELETE FROM chunk_embeddings WHERE point_id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (s *Store) PointIDsByDocument(ctx context.Context, documentID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT point_id FROM chunk_embeddings WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document points: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan point id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate point ids: %w", err)
	}
	return ids, nil
}

func (s *Store) Name() string {
	return "pgvector"
}

func (s *Store) Check(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pg_extension WHERE extname = 'vector'`).Scan(&one); err != nil {
		return fmt.Errorf("pgvector extension check: %w", err)
	}
	return nil
}
