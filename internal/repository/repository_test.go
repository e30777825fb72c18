package repository

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sluggerrrr/briefcase-sub001/internal/config"
	"github.com/sluggerrrr/briefcase-sub001/internal/database"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; контейнер и пул закрываются в Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("briefcase_test"),
		postgres.WithUsername("briefcase"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("BC_DB_HOST", host)
	os.Setenv("BC_DB_PORT", port.Port())
	os.Setenv("BC_DB_NAME", "briefcase_test")
	os.Setenv("BC_DB_USER", "briefcase")
	os.Setenv("BC_DB_PASSWORD", "test-password")
	os.Setenv("BC_DB_SSL_MODE", "disable")
	os.Setenv("BC_MASTER_KEY", "test-master-key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newTestDocument строит документ с заполненными обязательными полями.
func newTestDocument(ownerID string) *model.Document {
	return &model.Document{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Title:            "Договор аренды",
		OriginalFilename: "contract.pdf",
		ContentType:      "application/pdf",
		Size:             2048,
		BlobHandle:       uuid.New().String(),
		Status:           model.StatusActive,
	}
}

func intPtr(n int) *int { return &n }

// --- Тесты DocumentRepository ---

func TestDocumentCreateAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	doc := newTestDocument("alice")
	keyRef := uuid.New().String()
	doc.KeyRef = &keyRef

	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	got, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.OwnerID != "alice" || got.Title != doc.Title || got.Status != model.StatusActive {
		t.Errorf("GetByID() вернул %+v", got)
	}
	if got.KeyRef == nil || *got.KeyRef != keyRef {
		t.Errorf("KeyRef = %v, ожидался %s", got.KeyRef, keyRef)
	}

	// Повторный Create с тем же ID — конфликт
	if err := repo.Create(ctx, doc); err == nil {
		t.Error("повторный Create() не вернул ошибку")
	}

	// Несуществующий документ
	if _, err := repo.GetByID(ctx, uuid.New().String()); err != ErrNotFound {
		t.Errorf("GetByID(несуществующий) = %v, ожидался ErrNotFound", err)
	}
}

func TestDocumentListByOwner(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	owner := uuid.New().String()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newTestDocument(owner)); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	// Один документ помечаем deleted — в списке он не появляется
	deleted := newTestDocument(owner)
	if err := repo.Create(ctx, deleted); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if ok, err := repo.MarkDeleted(ctx, deleted.ID, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("MarkDeleted() = %v, %v", ok, err)
	}

	docs, err := repo.ListByOwner(ctx, owner, 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner() ошибка: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("ListByOwner() вернул %d документов, ожидалось 3", len(docs))
	}
	for _, d := range docs {
		if d.Status == model.StatusDeleted {
			t.Errorf("ListByOwner() вернул deleted документ %s", d.ID)
		}
	}
}

func TestConsumeViewConcurrent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	doc := newTestDocument("alice")
	doc.ViewLimit = intPtr(5)
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// 20 конкурентных просмотров при лимите 5:
	// засчитаться должны ровно 5.
	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConsumeView(ctx, doc.ID)
			if err != nil {
				t.Errorf("ConsumeView() ошибка: %v", err)
				return
			}
			if ok {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if consumed != 5 {
		t.Errorf("засчитано %d просмотров, ожидалось ровно 5", consumed)
	}

	got, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.AccessCount != 5 {
		t.Errorf("AccessCount = %d, ожидалось 5", got.AccessCount)
	}
}

func TestStatusTransitions(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	doc := newTestDocument("alice")
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// active → expired: первый переход true, повторный false
	ok, err := repo.MarkExpired(ctx, doc.ID)
	if err != nil || !ok {
		t.Fatalf("MarkExpired() = %v, %v, ожидался true", ok, err)
	}
	ok, err = repo.MarkExpired(ctx, doc.ID)
	if err != nil {
		t.Fatalf("MarkExpired() повторно: %v", err)
	}
	if ok {
		t.Error("повторный MarkExpired() вернул true")
	}

	// expired → deleted
	ok, err = repo.MarkDeleted(ctx, doc.ID, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("MarkDeleted() = %v, %v, ожидался true", ok, err)
	}

	// deleted — терминальное состояние: просмотр не засчитывается
	ok, err = repo.ConsumeView(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ConsumeView() ошибка: %v", err)
	}
	if ok {
		t.Error("ConsumeView() засчитал просмотр deleted документа")
	}
}

func TestListExpirableAndPurgeable(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)
	now := time.Now().UTC()

	// Документ с истёкшим сроком
	byDeadline := newTestDocument("alice")
	past := now.Add(-time.Hour)
	byDeadline.ExpiresAt = &past
	if err := repo.Create(ctx, byDeadline); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Документ с исчерпанным лимитом
	byLimit := newTestDocument("alice")
	byLimit.ViewLimit = intPtr(1)
	if err := repo.Create(ctx, byLimit); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if ok, err := repo.ConsumeView(ctx, byLimit.ID); err != nil || !ok {
		t.Fatalf("ConsumeView() = %v, %v", ok, err)
	}

	// Активный документ без ограничений — не попадает
	forever := newTestDocument("alice")
	if err := repo.Create(ctx, forever); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	expirable, err := repo.ListExpirable(ctx, now, 100)
	if err != nil {
		t.Fatalf("ListExpirable() ошибка: %v", err)
	}
	found := map[string]bool{}
	for _, d := range expirable {
		found[d.ID] = true
	}
	if !found[byDeadline.ID] || !found[byLimit.ID] {
		t.Errorf("ListExpirable() не вернул ожидаемые документы: %v", found)
	}
	if found[forever.ID] {
		t.Error("ListExpirable() вернул активный документ без ограничений")
	}

	// Purgeable: deleted раньше cutoff
	if ok, err := repo.MarkDeleted(ctx, byDeadline.ID, now.Add(-48*time.Hour)); err != nil || !ok {
		t.Fatalf("MarkDeleted() = %v, %v", ok, err)
	}
	purgeable, err := repo.ListPurgeable(ctx, now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("ListPurgeable() ошибка: %v", err)
	}
	foundPurge := false
	for _, d := range purgeable {
		if d.ID == byDeadline.ID {
			foundPurge = true
		}
	}
	if !foundPurge {
		t.Error("ListPurgeable() не вернул документ с истёкшим grace-периодом")
	}

	// Физическое удаление
	if err := repo.Purge(ctx, byDeadline.ID); err != nil {
		t.Fatalf("Purge() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, byDeadline.ID); err != ErrNotFound {
		t.Errorf("GetByID() после Purge = %v, ожидался ErrNotFound", err)
	}
}

// --- Тесты PermissionRepository ---

func TestPermissionUpsertAndList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPermissionRepository(pool)
	now := time.Now().UTC()

	docID := uuid.New().String()
	entry := &model.PermissionEntry{
		SubjectID:  "bob",
		DocumentID: docID,
		Capability: "read",
		GrantedBy:  "alice",
		GrantedAt:  now,
	}
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}

	// Повторный Upsert обновляет, не дублируя
	future := now.Add(time.Hour)
	entry.ExpiresAt = &future
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}

	entries, err := repo.ListBySubjectAndDocument(ctx, "bob", docID, now)
	if err != nil {
		t.Fatalf("ListBySubjectAndDocument() ошибка: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("получено %d записей, ожидалась 1", len(entries))
	}
	if entries[0].ExpiresAt == nil {
		t.Error("ExpiresAt не обновлён повторным Upsert")
	}

	// Просроченное разрешение отфильтровывается
	expired := &model.PermissionEntry{
		SubjectID:  "carol",
		DocumentID: docID,
		Capability: "read",
		GrantedBy:  "alice",
		GrantedAt:  now.Add(-2 * time.Hour),
	}
	pastExpiry := now.Add(-time.Hour)
	expired.ExpiresAt = &pastExpiry
	if err := repo.Upsert(ctx, expired); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	entries, err = repo.ListBySubjectAndDocument(ctx, "carol", docID, now)
	if err != nil {
		t.Fatalf("ListBySubjectAndDocument() ошибка: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("просроченное разрешение вернулось в выборке: %d записей", len(entries))
	}

	// ListByDocument возвращает все, включая просроченные
	all, err := repo.ListByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("ListByDocument() ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListByDocument() вернул %d записей, ожидалось 2", len(all))
	}

	// Delete: существующее true, отсутствующее false
	existed, err := repo.Delete(ctx, "bob", docID, "read")
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v, ожидался true", existed, err)
	}
	existed, err = repo.Delete(ctx, "bob", docID, "read")
	if err != nil {
		t.Fatalf("Delete() повторно: %v", err)
	}
	if existed {
		t.Error("повторный Delete() вернул true")
	}

	// DeleteByDocument зачищает остаток
	n, err := repo.DeleteByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("DeleteByDocument() ошибка: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteByDocument() удалил %d записей, ожидалась 1", n)
	}
}

// --- Тесты KeyRepository и DocumentDeleter ---

func TestDocumentDeleterTransaction(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	docs := NewDocumentRepository(pool)
	keys := NewKeyRepository(pool)
	deleter := NewDocumentDeleter(NewTxRunner(pool))

	doc := newTestDocument("alice")
	keyRef := uuid.New().String()
	doc.KeyRef = &keyRef
	if err := docs.Create(ctx, doc); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := keys.Insert(ctx, keyRef, doc.ID, []byte("wrapped-key-bytes")); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	deleted, destroyed, err := deleter.DeleteWithKeys(ctx, doc.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteWithKeys() ошибка: %v", err)
	}
	if !deleted || destroyed != 1 {
		t.Errorf("DeleteWithKeys() = (%v, %d), ожидалось (true, 1)", deleted, destroyed)
	}

	// Ключ уничтожен, key_ref обнулён, документ deleted
	if _, err := keys.Get(ctx, keyRef); err != ErrNotFound {
		t.Errorf("Get(ключ) после удаления = %v, ожидался ErrNotFound", err)
	}
	got, err := docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.StatusDeleted {
		t.Errorf("Status = %s, ожидался deleted", got.Status)
	}
	if got.KeyRef != nil {
		t.Error("KeyRef не обнулён после уничтожения ключа")
	}

	// Повторное удаление — документ уже deleted
	deleted, _, err = deleter.DeleteWithKeys(ctx, doc.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("повторный DeleteWithKeys() ошибка: %v", err)
	}
	if deleted {
		t.Error("повторный DeleteWithKeys() вернул true")
	}
}

// --- Тесты AuditRepository ---

func TestAuditAppendQueryPurge(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(pool)
	now := time.Now().UTC()

	docID := uuid.New().String()
	records := []*model.AuditRecord{
		{Timestamp: now.Add(-48 * time.Hour), SubjectID: "alice", DocumentID: docID, Action: "upload", Outcome: model.OutcomeAllow},
		{Timestamp: now.Add(-time.Hour), SubjectID: "bob", DocumentID: docID, Action: "read", Outcome: model.OutcomeDeny, Reason: "INSUFFICIENT_CAPABILITY"},
		{Timestamp: now, SubjectID: "bob", DocumentID: docID, Action: "read", Outcome: model.OutcomeAllow},
	}
	for _, rec := range records {
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatalf("Append() ошибка: %v", err)
		}
		if rec.ID == 0 {
			t.Error("Append() не заполнил ID")
		}
	}

	// Фильтр по субъекту и исходу
	got, err := repo.Query(ctx, model.AuditFilters{SubjectID: "bob", Outcome: model.OutcomeDeny}, 100, 0)
	if err != nil {
		t.Fatalf("Query() ошибка: %v", err)
	}
	if len(got) != 1 || got[0].Reason != "INSUFFICIENT_CAPABILITY" {
		t.Errorf("Query(subject=bob, outcome=deny) вернул %d записей", len(got))
	}

	// Фильтр по документу — все три, в хронологическом порядке
	got, err = repo.Query(ctx, model.AuditFilters{DocumentID: docID}, 100, 0)
	if err != nil {
		t.Fatalf("Query() ошибка: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query(document) вернул %d записей, ожидалось 3", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("записи не упорядочены по timestamp по возрастанию")
	}

	// Retention: удаляются только записи старше cutoff
	purged, err := repo.PurgeOlderThan(ctx, now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("PurgeOlderThan() ошибка: %v", err)
	}
	if purged != 1 {
		t.Errorf("PurgeOlderThan() удалил %d записей, ожидалась 1", purged)
	}
	remaining, err := repo.Query(ctx, model.AuditFilters{DocumentID: docID}, 100, 0)
	if err != nil {
		t.Fatalf("Query() ошибка: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("после retention осталось %d записей, ожидалось 2", len(remaining))
	}
}

// --- Тесты JobRunRepository ---

func TestJobRunCreateListGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewJobRunRepository(pool)
	now := time.Now().UTC()

	run := &model.JobRun{
		ID:               uuid.New().String(),
		StartedAt:        now.Add(-time.Minute),
		CompletedAt:      now,
		DocumentsScanned: 42,
		DocumentsExpired: 7,
		DocumentsPurged:  3,
		AuditPurged:      100,
		Errors:           1,
		ErrorDetail:      []string{"документ abc: blob недоступен"},
		Status:           model.JobStatusCompleted,
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.DocumentsExpired != 7 || got.Status != model.JobStatusCompleted {
		t.Errorf("GetByID() вернул %+v", got)
	}
	if len(got.ErrorDetail) != 1 {
		t.Errorf("ErrorDetail = %v, ожидалась 1 запись", got.ErrorDetail)
	}

	runs, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(runs) == 0 {
		t.Error("List() вернул пустой список")
	}

	if _, err := repo.GetByID(ctx, uuid.New().String()); err != ErrNotFound {
		t.Errorf("GetByID(несуществующий) = %v, ожидался ErrNotFound", err)
	}
}
