package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
	"github.com/sluggerrrr/briefcase-sub001/internal/storage/blobstore"
)

// In-memory фейки репозиториев и коллабораторов.
// CAS-семантика ConsumeView/MarkExpired/MarkDeleted воспроизводится
// под мьютексом — тесты конкурентности работают против той же
// атомарности, что и условные UPDATE в PostgreSQL.

// --- документы ---

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[string]*model.Document)}
}

func (f *fakeDocumentRepo) Create(_ context.Context, d *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[d.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	f.docs[d.ID] = &cp
	return nil
}

func (f *fakeDocumentRepo) GetByID(_ context.Context, documentID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocumentRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID && d.Status != model.StatusDeleted {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeDocumentRepo) ConsumeView(_ context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.Status != model.StatusActive {
		return false, nil
	}
	if d.ViewLimit != nil && d.AccessCount >= *d.ViewLimit {
		return false, nil
	}
	d.AccessCount++
	return true, nil
}

func (f *fakeDocumentRepo) MarkExpired(_ context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.Status != model.StatusActive {
		return false, nil
	}
	d.Status = model.StatusExpired
	return true, nil
}

func (f *fakeDocumentRepo) MarkDeleted(_ context.Context, documentID string, deletedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.Status == model.StatusDeleted {
		return false, nil
	}
	d.Status = model.StatusDeleted
	d.DeletedAt = &deletedAt
	return true, nil
}

func (f *fakeDocumentRepo) ClearKeyRef(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[documentID]; ok {
		d.KeyRef = nil
	}
	return nil
}

func (f *fakeDocumentRepo) ListExpirable(_ context.Context, now time.Time, limit int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.Document
	for _, d := range f.docs {
		if d.Status != model.StatusActive {
			continue
		}
		if d.IsExpired(now) || d.ViewsExhausted() {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeDocumentRepo) ListPurgeable(_ context.Context, cutoff time.Time, limit int) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.Document
	for _, d := range f.docs {
		if d.Status == model.StatusDeleted && d.DeletedAt != nil && !d.DeletedAt.After(cutoff) {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeDocumentRepo) Purge(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[documentID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.docs, documentID)
	return nil
}

// --- разрешения ---

type permKey struct {
	subject, document, capability string
}

type fakePermissionRepo struct {
	mu      sync.Mutex
	entries map[permKey]*model.PermissionEntry
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{entries: make(map[permKey]*model.PermissionEntry)}
}

func (f *fakePermissionRepo) Upsert(_ context.Context, p *model.PermissionEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.entries[permKey{p.SubjectID, p.DocumentID, p.Capability}] = &cp
	return nil
}

func (f *fakePermissionRepo) Delete(_ context.Context, subjectID, documentID, capability string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := permKey{subjectID, documentID, capability}
	if _, ok := f.entries[key]; !ok {
		return false, nil
	}
	delete(f.entries, key)
	return true, nil
}

func (f *fakePermissionRepo) ListBySubjectAndDocument(_ context.Context, subjectID, documentID string, now time.Time) ([]*model.PermissionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.PermissionEntry
	for _, e := range f.entries {
		if e.SubjectID == subjectID && e.DocumentID == documentID && e.IsActive(now) {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakePermissionRepo) ListByDocument(_ context.Context, documentID string) ([]*model.PermissionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*model.PermissionEntry
	for _, e := range f.entries {
		if e.DocumentID == documentID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (f *fakePermissionRepo) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for key := range f.entries {
		if key.document == documentID {
			delete(f.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// --- аудит ---

// fakeAuditSink — фейк приёмника аудита с переключаемым отказом.
type fakeAuditSink struct {
	mu      sync.Mutex
	records []*model.AuditRecord
	failing bool
}

func newFakeAuditSink() *fakeAuditSink {
	return &fakeAuditSink{}
}

func (f *fakeAuditSink) Append(_ context.Context, rec *model.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return ErrAuditUnavailable
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	cp := *rec
	cp.ID = int64(len(f.records) + 1)
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeAuditSink) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeAuditSink) all() []*model.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.AuditRecord, len(f.records))
	copy(result, f.records)
	return result
}

// countByAction возвращает количество записей с данным действием.
func (f *fakeAuditSink) countByAction(action string) int {
	count := 0
	for _, rec := range f.all() {
		if rec.Action == action {
			count++
		}
	}
	return count
}

// PurgeOlderThan — retention для LifecycleService.
func (f *fakeAuditSink) PurgeOlderThan(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*model.AuditRecord
	purged := 0
	for _, rec := range f.records {
		if purged < limit && rec.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	f.records = kept
	return purged, nil
}

// --- запуски джобов ---

type fakeJobRunRepo struct {
	mu   sync.Mutex
	runs []*model.JobRun
}

func newFakeJobRunRepo() *fakeJobRunRepo {
	return &fakeJobRunRepo{}
}

func (f *fakeJobRunRepo) Create(_ context.Context, run *model.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs = append(f.runs, &cp)
	return nil
}

func (f *fakeJobRunRepo) List(_ context.Context, limit, offset int) ([]*model.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.JobRun, len(f.runs))
	copy(result, f.runs)
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeJobRunRepo) GetByID(_ context.Context, runID string) (*model.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.ID == runID {
			cp := *run
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// --- blob store ---

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(handle string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.blobs[handle] = cp
	return nil
}

func (f *fakeBlobStore) Get(handle string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[handle]
	if !ok {
		return nil, blobstore.ErrBlobNotFound
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, handle)
	return nil
}

// --- хранилище ключей ---

type fakeKeyStore struct {
	mu   sync.Mutex
	keys map[string][]byte
	docs map[string][]string
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys: make(map[string][]byte),
		docs: make(map[string][]string),
	}
}

func (f *fakeKeyStore) Insert(_ context.Context, keyRef, documentID string, wrapped []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[keyRef]; ok {
		return repository.ErrConflict
	}
	f.keys[keyRef] = wrapped
	f.docs[documentID] = append(f.docs[documentID], keyRef)
	return nil
}

func (f *fakeKeyStore) Get(_ context.Context, keyRef string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wrapped, ok := f.keys[keyRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return wrapped, nil
}

func (f *fakeKeyStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.docs[documentID]
	for _, ref := range refs {
		delete(f.keys, ref)
	}
	delete(f.docs, documentID)
	return len(refs), nil
}

// --- транзакционный удалитель ---

// fakeDeleter повторяет семантику repository.DocumentDeleter
// поверх фейков документов и ключей.
type fakeDeleter struct {
	docs *fakeDocumentRepo
	keys *fakeKeyStore
}

func (f *fakeDeleter) DeleteWithKeys(ctx context.Context, documentID string, deletedAt time.Time) (bool, int, error) {
	deleted, err := f.docs.MarkDeleted(ctx, documentID, deletedAt)
	if err != nil || !deleted {
		return false, 0, err
	}
	destroyed, err := f.keys.DeleteByDocument(ctx, documentID)
	if err != nil {
		return false, 0, err
	}
	if err := f.docs.ClearKeyRef(ctx, documentID); err != nil {
		return false, 0, err
	}
	return true, destroyed, nil
}

// errPermissionRepo — фейк разрешений, всегда возвращающий ошибку.
type errPermissionRepo struct {
	fakePermissionRepo
}

var errStorage = errors.New("хранилище недоступно")

func (f *errPermissionRepo) ListBySubjectAndDocument(context.Context, string, string, time.Time) ([]*model.PermissionEntry, error) {
	return nil, errStorage
}
