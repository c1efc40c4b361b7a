package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
)

type statusCall struct {
	id     int64
	status domain.DocumentStatus
	errMsg string
	ctxErr error
}

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[int64]*domain.Document
	nextID      int64
	getErr      error
	createErr   error
	statusCalls []statusCall
	indexed     map[int64]int
	events      *[]string
}

func newDocRepoFake(events *[]string, docs ...domain.Document) *docRepoFake {
	f := &docRepoFake{docs: make(map[int64]*domain.Document), nextID: 100, indexed: make(map[int64]int), events: events}
	for i := range docs {
		d := docs[i]
		f.docs[d.ID] = &d
	}
	return f
}

func (f *docRepoFake) record(event string) {
	if f.events != nil {
		*f.events = append(*f.events, event)
	}
}

func (f *docRepoFake) find(match func(*domain.Document) bool) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, d := range f.docs {
		if match(d) {
			copyDoc := *d
			return &copyDoc, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (f *docRepoFake) GetByID(_ context.Context, id int64) (*domain.Document, error) {
	return f.find(func(d *domain.Document) bool { return d.ID == id })
}

func (f *docRepoFake) GetByHash(_ context.Context, hash string) (*domain.Document, error) {
	return f.find(func(d *domain.Document) bool { return d.ContentHash == hash })
}

func (f *docRepoFake) GetByPath(_ context.Context, path string) (*domain.Document, error) {
	return f.find(func(d *domain.Document) bool { return d.Path == path })
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	doc.ID = f.nextID
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.record("doc.create")
	return nil
}

func (f *docRepoFake) BeginProcessing(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	copyDoc.Status = domain.StatusProcessing
	f.docs[doc.ID] = &copyDoc
	f.record("doc.begin")
	return nil
}

func (f *docRepoFake) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{id: id, status: status, errMsg: errMessage, ctxErr: ctx.Err()})
	if d, ok := f.docs[id]; ok {
		d.Status = status
		d.Error = errMessage
	}
	f.record("doc.status." + string(status))
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%d", id))
	}
	delete(f.docs, id)
	f.record("doc.delete")
	return nil
}

func (f *docRepoFake) MarkIndexed(_ context.Context, id int64, chunkCount int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[id] = chunkCount
	if d, ok := f.docs[id]; ok {
		d.Status = domain.StatusIndexed
		d.ChunkCount = chunkCount
	}
	f.record("doc.indexed")
	return nil
}

func (f *docRepoFake) KnownHashes(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[string]string, len(f.docs))
	for _, d := range f.docs {
		out[d.Path] = d.ContentHash
	}
	return out, nil
}

func (f *docRepoFake) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.Document, 0)
	for _, id := range ids {
		d := f.docs[id]
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if !filter.Access.AllowsDocument(*d) {
			continue
		}
		out = append(out, *d)
	}
	if filter.Offset >= len(out) {
		return []domain.Document{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *docRepoFake) get(id int64) domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

type chunkRepoFake struct {
	rows      map[int64][]domain.Chunk
	insertErr error
	events    *[]string
}

func newChunkRepoFake(events *[]string) *chunkRepoFake {
	return &chunkRepoFake{rows: make(map[int64][]domain.Chunk), events: events}
}

func (f *chunkRepoFake) record(event string) {
	if f.events != nil {
		*f.events = append(*f.events, event)
	}
}

func (f *chunkRepoFake) ListByDocument(_ context.Context, id int64) ([]domain.Chunk, error) {
	return append([]domain.Chunk(nil), f.rows[id]...), nil
}

func (f *chunkRepoFake) DeleteByDocument(_ context.Context, id int64) error {
	delete(f.rows, id)
	f.record("chunks.delete")
	return nil
}

func (f *chunkRepoFake) InsertBatch(_ context.Context, chunks []domain.Chunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, c := range chunks {
		f.rows[c.DocumentID] = append(f.rows[c.DocumentID], c)
	}
	f.record("chunks.insert")
	return nil
}

type vectorStoreFake struct {
	points    map[string]domain.VectorPoint
	upsertErr error
	searchErr error
	results   []domain.RetrievedChunk
	deleted   []string
	lastLimit int
	lastThr   float64
	lastFilt  domain.AccessFilter
	events    *[]string
}

func newVectorStoreFake(events *[]string) *vectorStoreFake {
	return &vectorStoreFake{points: make(map[string]domain.VectorPoint), events: events}
}

func (f *vectorStoreFake) record(event string) {
	if f.events != nil {
		*f.events = append(*f.events, event)
	}
}

func (f *vectorStoreFake) Upsert(_ context.Context, points []domain.VectorPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	f.record("points.upsert")
	return nil
}

func (f *vectorStoreFake) Search(_ context.Context, _ []float32, limit int, threshold float64, filter domain.AccessFilter) ([]domain.RetrievedChunk, error) {
	f.lastLimit, f.lastThr, f.lastFilt = limit, threshold, filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]domain.RetrievedChunk, 0, len(f.results))
	for _, r := range f.results {
		if filter.Allows(domain.PointPayload{DepartmentID: r.DepartmentID, RoleID: r.RoleID}) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *vectorStoreFake) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.points, id)
	}
	f.deleted = append(f.deleted, ids...)
	f.record("points.delete")
	return nil
}

func (f *vectorStoreFake) PointIDsByDocument(_ context.Context, documentID int64) ([]string, error) {
	ids := make([]string, 0)
	for id, p := range f.points {
		if p.Payload.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

type embedderFake struct {
	vectors [][]float32
	err     error
	// block makes Embed wait for ctx to end.
	block bool
}

func (f *embedderFake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

func (f *embedderFake) ModelName() string { return "e5-test" }

type lockerFake struct {
	busy        bool
	released    int
	hadDeadline bool
}

func (f *lockerFake) TryLock(ctx context.Context, _ string) (func(), bool, error) {
	_, f.hadDeadline = ctx.Deadline()
	if f.busy {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}

type auditSinkFake struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (f *auditSinkFake) Record(r domain.AuditRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

type auditRepoFake struct {
	mu       sync.Mutex
	inserted []domain.AuditRecord
	block    chan struct{}
}

func (f *auditRepoFake) Insert(_ context.Context, r domain.AuditRecord) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *auditRepoFake) ListByUser(_ context.Context, userID int64, limit int) ([]domain.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditRecord, 0)
	for _, r := range f.inserted {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *auditRepoFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}
