package pgvector

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

func TestSearchTranslatesAccessFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	filter := domain.NewAccessFilter(domain.Principal{DepartmentID: 5, RoleID: 2})
	mock.ExpectQuery(regexp.QuoteMeta("WHERE department_id IN ($2,$3) AND role_id IN ($4,$5) AND 1 - (embedding <=> $1) >= $6")).
		WithArgs(sqlmock.AnyArg(), int64(5), int64(0), int64(2), int64(0), 0.3, 20).
		WillReturnRows(sqlmock.NewRows([]string{"point_id", "document_id", "chunk_index", "filename", "file_path", "content", "department_id", "role_id", "score"}).
			AddRow("p1", int64(7), 0, "a.pdf", "/nas/5/2/a.pdf", "text", int64(5), int64(2), 0.91))

	got, err := New(db).Search(context.Background(), []float32{0.1, 0.2}, 20, 0.3, filter)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].PointID != "p1" || got[0].Score != 0.91 || got[0].RoleID != 2 {
		t.Fatalf("unexpected chunks %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchRejectsUnknownField(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	_, err = New(db).Search(context.Background(), []float32{1}, 5, 0, domain.AccessFilter{Must: []domain.AnyOf{{Field: "owner", Values: []int64{1}}}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpsertAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chunk_embeddings").
		WithArgs("p1", int64(7), 0, "text", "a.pdf", "/nas/a.pdf", ".pdf", int64(5), int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunk_embeddings WHERE point_id IN ($1,$2)")).
		WithArgs("p1", "p2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := New(db)
	err = store.Upsert(context.Background(), []domain.VectorPoint{{
		ID:     "p1",
		Vector: []float32{0.1, 0.2},
		Payload: domain.PointPayload{
			DocumentID: 7, Content: "text", Filename: "a.pdf", FilePath: "/nas/a.pdf", FileType: ".pdf", DepartmentID: 5, RoleID: 2,
		},
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Delete(context.Background(), []string{"p1", "p2"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPointIDsByDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT point_id FROM chunk_embeddings").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"point_id"}).AddRow("a").AddRow("b"))

	ids, err := New(db).PointIDsByDocument(context.Background(), 7)
	if err != nil || len(ids) != 2 {
		t.Fatalf("unexpected ids %v, %v", ids, err)
	}
}
