package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, path, filename, file_type, size, content_hash, department_id, role_id,
status, version, chunk_count, error_message, created_at, updated_at, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var indexedAt sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.Path, &doc.Filename, &doc.FileType, &doc.Size, &doc.ContentHash,
		&doc.DepartmentID, &doc.RoleID, &status, &doc.Version, &doc.ChunkCount, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt, &indexedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	if indexedAt.Valid {
		t := indexedAt.Time
		doc.IndexedAt = &t
	}
	return &doc, nil
}

func (r *DocumentRepository) getOne(ctx context.Context, where string, arg any) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where+` = $1`, arg)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("%s=%v", where, arg))
		}
		return nil, wrapConnErr("scan document", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	return r.getOne(ctx, "id", id)
}

func (r *DocumentRepository) GetByHash(ctx context.Context, contentHash string) (*domain.Document, error) {
	return r.getOne(ctx, "content_hash", contentHash)
}

func (r *DocumentRepository) GetByPath(ctx context.Context, path string) (*domain.Document, error) {
	return r.getOne(ctx, "path", path)
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	err := r.db.QueryRowContext(ctx, `
INSERT INTO documents (
	path, filename, file_type, size, content_hash, department_id, role_id, status, version, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id
`,
		doc.Path, doc.Filename, doc.FileType, doc.Size, doc.ContentHash, doc.DepartmentID, doc.RoleID,
		string(doc.Status), doc.Version, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	).Scan(&doc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateContent, "insert document", err)
		}
		return wrapConnErr("insert document", err)
	}
	return nil
}

func (r *DocumentRepository) BeginProcessing(ctx context.Context, doc *domain.Document) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET content_hash = $2, size = $3, file_type = $4, department_id = $5, role_id = $6,
	version = $7, status = $8, error_message = '', updated_at = $9
WHERE id = $1
`, doc.ID, doc.ContentHash, doc.Size, doc.FileType, doc.DepartmentID, doc.RoleID,
		doc.Version, string(domain.StatusProcessing), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateContent, "begin processing", err)
		}
		return wrapConnErr("begin processing", err)
	}
	return expectOneRow(res, "begin processing", doc.ID)
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return wrapConnErr("update document status", err)
	}
	return expectOneRow(res, "update document status", id)
}

// Delete removes the document row; its chunk rows go with it.
func (r *DocumentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return wrapConnErr("delete document", err)
	}
	return expectOneRow(res, "delete document", id)
}

func (r *DocumentRepository) MarkIndexed(ctx context.Context, id int64, chunkCount int, indexedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, chunk_count = $3, error_message = '', indexed_at = $4, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusIndexed), chunkCount, indexedAt)
	if err != nil {
		return wrapConnErr("mark document indexed", err)
	}
	return expectOneRow(res, "mark document indexed", id)
}

func (r *DocumentRepository) KnownHashes(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path, content_hash FROM documents`)
	if err != nil {
		return nil, wrapConnErr("list known hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan known hash: %w", err)
		}
		out[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known hashes: %w", err)
	}
	return out, nil
}

// listColumns whitelists the fields a listing AccessFilter may address.
var listColumns = map[string]string{
	domain.FieldDepartmentID: "department_id",
	domain.FieldRoleID:       "role_id",
}

func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	for _, clause := range filter.Access.Must {
		column, ok := listColumns[clause.Field]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown filter field %q", clause.Field))
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

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapConnErr("list documents", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func expectOneRow(res sql.Result, operation string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%d", id))
	}
	return nil
}
