package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const failureMarkTimeout = 10 * time.Second

var errAlreadyIndexed = errors.New("document already indexed")

type IndexingOptions struct {
	// JobTimeout bounds one document end to end. Zero disables the bound.
	JobTimeout time.Duration
	// TokenCounter fills Chunk.TokenCount. Defaults to a whitespace word count.
	TokenCounter func(string) int
}

// IndexingCoordinator takes one changed file through extract, chunk, embed
// and the relational/vector dual write.
type IndexingCoordinator struct {
	docs      ports.DocumentRepository
	chunks    ports.ChunkRepository
	locker    ports.DocumentLocker
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectors   ports.VectorStore
	opts      IndexingOptions
	newID     func() string
	now       func() time.Time
}

func NewIndexingCoordinator(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	locker ports.DocumentLocker,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	opts IndexingOptions,
) *IndexingCoordinator {
	if opts.TokenCounter == nil {
		opts.TokenCounter = func(s string) int { return len(strings.Fields(s)) }
	}
	return &IndexingCoordinator{
		docs:      docs,
		chunks:    chunks,
		locker:    locker,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		opts:      opts,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Index processes job. Once a document row is in processing it leaves Index
// either indexed or failed, even when ctx is cancelled.
func (uc *IndexingCoordinator) Index(ctx context.Context, job domain.IndexJob) error {
	if strings.TrimSpace(job.Path) == "" || strings.TrimSpace(job.ContentHash) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "index document", errors.New("job path and content hash are required"))
	}

	if uc.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.JobTimeout)
		defer cancel()
	}

	release, err := uc.lock(ctx, "index document", job.Path)
	if err != nil {
		return err
	}
	defer release()

	doc, err := uc.resolveDocument(ctx, job)
	if errors.Is(err, errAlreadyIndexed) {
		slog.Info("index_document_unchanged", "path", job.Path, "document_id", doc.ID)
		return nil
	}
	if err != nil {
		return err
	}

	chunkCount, err := uc.processPipeline(ctx, doc)
	if err != nil {
		if failErr := uc.markFailed(ctx, doc.ID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	slog.Info("index_document_done",
		"document_id", doc.ID,
		"path", doc.Path,
		"version", doc.Version,
		"chunks", chunkCount,
	)
	return nil
}

// Remove deletes the document stored for path: vector points first, then
// chunk rows, then the document row. An unknown path is not an error.
func (uc *IndexingCoordinator) Remove(ctx context.Context, path string) error {
	release, err := uc.lock(ctx, "remove document", path)
	if err != nil {
		return err
	}
	defer release()

	doc, err := uc.docs.GetByPath(ctx, path)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch document by path: %w", err)
	}

	stale, err := uc.stalePointIDs(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := uc.vectors.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete points: %w", err)
		}
	}
	if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	slog.Info("index_document_removed", "document_id", doc.ID, "path", path, "points", len(stale))
	return nil
}

func (uc *IndexingCoordinator) lock(ctx context.Context, operation, path string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}
	release, acquired, err := uc.locker.TryLock(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("lock document: %w", err)
	}
	if !acquired {
		return nil, domain.WrapError(domain.ErrDocumentBusy, operation, fmt.Errorf("path %s", path))
	}
	return release, nil
}

// resolveDocument finds or creates the row for job and moves it to processing.
// The same content under a different path is rejected as a duplicate; a known
// path with new content keeps its id and gets version+1.
func (uc *IndexingCoordinator) resolveDocument(ctx context.Context, job domain.IndexJob) (*domain.Document, error) {
	byHash, err := uc.docs.GetByHash(ctx, job.ContentHash)
	switch {
	case err == nil:
		if byHash.Path != job.Path {
			return nil, domain.WrapError(domain.ErrDuplicateContent, "resolve document",
				fmt.Errorf("%s has the same content as document %d (%s)", job.Path, byHash.ID, byHash.Path))
		}
		if byHash.Status == domain.StatusIndexed && job.Change != domain.ChangeManual {
			return byHash, errAlreadyIndexed
		}
		applyJob(byHash, job)
		if err := uc.docs.BeginProcessing(ctx, byHash); err != nil {
			return nil, fmt.Errorf("begin processing: %w", err)
		}
		return byHash, nil
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return nil, fmt.Errorf("fetch document by hash: %w", err)
	}

	byPath, err := uc.docs.GetByPath(ctx, job.Path)
	switch {
	case err == nil:
		applyJob(byPath, job)
		byPath.Version++
		if err := uc.docs.BeginProcessing(ctx, byPath); err != nil {
			return nil, fmt.Errorf("begin processing: %w", err)
		}
		return byPath, nil
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return nil, fmt.Errorf("fetch document by path: %w", err)
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		Path:      job.Path,
		Filename:  filepath.Base(job.Path),
		Version:   1,
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyJob(doc, job)
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func applyJob(doc *domain.Document, job domain.IndexJob) {
	doc.ContentHash = job.ContentHash
	doc.Size = job.Size
	doc.DepartmentID = job.DepartmentID
	doc.RoleID = job.RoleID
	doc.FileType = strings.ToLower(job.FileType)
	if doc.FileType == "" {
		doc.FileType = strings.ToLower(filepath.Ext(job.Path))
	}
	doc.Status = domain.StatusProcessing
	doc.Error = ""
}

func (uc *IndexingCoordinator) processPipeline(ctx context.Context, doc *domain.Document) (int, error) {
	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return 0, err
	}

	contents, err := uc.chunk(text)
	if err != nil {
		return 0, err
	}

	vectors, err := uc.embed(ctx, contents)
	if err != nil {
		return 0, err
	}

	if err := uc.replaceChunks(ctx, doc, contents, vectors); err != nil {
		return 0, err
	}

	if err := uc.docs.MarkIndexed(ctx, doc.ID, len(contents), uc.now().UTC()); err != nil {
		return 0, fmt.Errorf("mark indexed: %w", err)
	}
	return len(contents), nil
}

func (uc *IndexingCoordinator) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc.Path, doc.FileType)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("no text extracted"))
	}
	return text, nil
}

func (uc *IndexingCoordinator) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *IndexingCoordinator) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrContractViolation,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

// replaceChunks removes the previous chunk set from both stores before writing
// the new one: vector points first, then rows, then new points, then new rows.
func (uc *IndexingCoordinator) replaceChunks(ctx context.Context, doc *domain.Document, contents []string, vectors [][]float32) error {
	stale, err := uc.stalePointIDs(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := uc.vectors.Delete(ctx, stale); err != nil {
			return fmt.Errorf("delete stale points: %w", err)
		}
	}
	if err := uc.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	model := uc.embedder.ModelName()
	points := make([]domain.VectorPoint, 0, len(contents))
	rows := make([]domain.Chunk, 0, len(contents))
	for i, content := range contents {
		pointID := uc.newID()
		points = append(points, domain.VectorPoint{
			ID:     pointID,
			Vector: vectors[i],
			Payload: domain.PointPayload{
				DocumentID:   doc.ID,
				ChunkIndex:   i,
				Content:      content,
				Filename:     doc.Filename,
				FilePath:     doc.Path,
				FileType:     doc.FileType,
				DepartmentID: doc.DepartmentID,
				RoleID:       doc.RoleID,
			},
		})
		rows = append(rows, domain.Chunk{
			DocumentID:     doc.ID,
			Index:          i,
			Content:        content,
			TokenCount:     uc.opts.TokenCounter(content),
			PointID:        pointID,
			EmbeddingModel: model,
		})
	}

	if err := uc.vectors.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	if err := uc.chunks.InsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// stalePointIDs unions the point ids recorded in chunk rows with the points the
// vector store still holds for the document, so leftovers of an interrupted
// run are removed too.
func (uc *IndexingCoordinator) stalePointIDs(ctx context.Context, documentID int64) ([]string, error) {
	rows, err := uc.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list stale chunks: %w", err)
	}
	stored, err := uc.vectors.PointIDsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list stale points: %w", err)
	}

	seen := make(map[string]struct{}, len(rows)+len(stored))
	ids := make([]string, 0, len(rows)+len(stored))
	for _, row := range rows {
		if _, ok := seen[row.PointID]; ok || row.PointID == "" {
			continue
		}
		seen[row.PointID] = struct{}{}
		ids = append(ids, row.PointID)
	}
	for _, id := range stored {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// markFailed records the failure on a context detached from ctx, so a
// cancelled or timed-out job still leaves the row failed.
func (uc *IndexingCoordinator) markFailed(ctx context.Context, documentID int64, processErr error) error {
	if processErr == nil {
		return nil
	}
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureMarkTimeout)
	defer cancel()
	return uc.docs.UpdateStatus(failCtx, documentID, domain.StatusFailed, processErr.Error())
}
