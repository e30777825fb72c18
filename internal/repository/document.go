package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
)

// DocumentRepository — интерфейс доступа к таблице documents.
// Все условные обновления (ConsumeView, MarkExpired, MarkDeleted) —
// однострочные CAS-запросы: синхронизация на уровне строки документа,
// глобальных блокировок нет.
type DocumentRepository interface {
	// Create создаёт новую запись документа.
	Create(ctx context.Context, d *model.Document) error
	// GetByID возвращает документ по UUID.
	GetByID(ctx context.Context, documentID string) (*model.Document, error)
	// ListByOwner возвращает документы владельца (включая expired, без deleted).
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error)
	// ConsumeView атомарно инкрементирует access_count, если документ active
	// и лимит просмотров не исчерпан. Возвращает true, если просмотр засчитан.
	// Проверка лимита и инкремент — единый read-modify-write в БД:
	// два конкурентных чтения не могут оба пройти за лимит.
	ConsumeView(ctx context.Context, documentID string) (bool, error)
	// MarkExpired переводит документ active → expired.
	// Возвращает true, если переход выполнен этим вызовом (CAS):
	// повторный вызов для уже expired документа возвращает false.
	MarkExpired(ctx context.Context, documentID string) (bool, error)
	// MarkDeleted переводит документ в deleted (из active или expired).
	// Возвращает true, если переход выполнен этим вызовом.
	MarkDeleted(ctx context.Context, documentID string, deletedAt time.Time) (bool, error)
	// ClearKeyRef обнуляет ссылку на ключ (после уничтожения ключа).
	ClearKeyRef(ctx context.Context, documentID string) error
	// ListExpirable возвращает страницу active документов, подлежащих
	// переводу в expired: expires_at <= now или лимит просмотров исчерпан.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*model.Document, error)
	// ListPurgeable возвращает страницу deleted документов,
	// помеченных раньше cutoff (grace-период истёк).
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*model.Document, error)
	// Purge физически удаляет запись документа.
	Purge(ctx context.Context, documentID string) error
}

// documentRepo — реализация DocumentRepository поверх pgx.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

// documentColumns — общий список колонок для SELECT.
const documentColumns = `id, owner_id, title, original_filename, content_type, size,
	blob_handle, key_ref, status, expires_at, view_limit, access_count,
	created_at, updated_at, deleted_at`

func (r *documentRepo) Create(ctx context.Context, d *model.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, title, original_filename, content_type,
			size, blob_handle, key_ref, status, expires_at, view_limit, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.OwnerID, d.Title, d.OriginalFilename, d.ContentType,
		d.Size, d.BlobHandle, d.KeyRef, d.Status, d.ExpiresAt, d.ViewLimit, d.AccessCount,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ с таким ID уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, documentID string) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	d := &model.Document{}
	err := scanDocument(r.db.QueryRow(ctx, query, documentID), d)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

func (r *documentRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND status != 'deleted'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// ConsumeView — атомарный инкремент счётчика просмотров.
// WHERE-условие содержит и статус, и лимит: row-level lock PostgreSQL
// сериализует конкурентные инкременты, access_count не превысит view_limit.
func (r *documentRepo) ConsumeView(ctx context.Context, documentID string) (bool, error) {
	query := `
		UPDATE documents
		SET access_count = access_count + 1, updated_at = now()
		WHERE id = $1
			AND status = 'active'
			AND (view_limit IS NULL OR access_count < view_limit)`

	tag, err := r.db.Exec(ctx, query, documentID)
	if err != nil {
		return false, fmt.Errorf("ошибка инкремента счётчика просмотров: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *documentRepo) MarkExpired(ctx context.Context, documentID string) (bool, error) {
	query := `
		UPDATE documents
		SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'`

	tag, err := r.db.Exec(ctx, query, documentID)
	if err != nil {
		return false, fmt.Errorf("ошибка перевода документа в expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *documentRepo) MarkDeleted(ctx context.Context, documentID string, deletedAt time.Time) (bool, error) {
	query := `
		UPDATE documents
		SET status = 'deleted', deleted_at = $2, updated_at = now()
		WHERE id = $1 AND status != 'deleted'`

	tag, err := r.db.Exec(ctx, query, documentID, deletedAt)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления документа: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *documentRepo) ClearKeyRef(ctx context.Context, documentID string) error {
	query := `UPDATE documents SET key_ref = NULL, updated_at = now() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, documentID); err != nil {
		return fmt.Errorf("ошибка обнуления key_ref: %w", err)
	}
	return nil
}

func (r *documentRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'active'
			AND (expires_at <= $1
				OR (view_limit IS NOT NULL AND access_count >= view_limit))
		ORDER BY id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки истекающих документов: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (r *documentRepo) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*model.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'deleted' AND deleted_at <= $1
		ORDER BY id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки документов для очистки: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (r *documentRepo) Purge(ctx context.Context, documentID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("ошибка физического удаления документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanDocument сканирует одну строку documents в модель.
func scanDocument(row pgx.Row, d *model.Document) error {
	return row.Scan(
		&d.ID, &d.OwnerID, &d.Title, &d.OriginalFilename, &d.ContentType, &d.Size,
		&d.BlobHandle, &d.KeyRef, &d.Status, &d.ExpiresAt, &d.ViewLimit, &d.AccessCount,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
	)
}

// collectDocuments сканирует все строки результата в срез моделей.
func collectDocuments(rows pgx.Rows) ([]*model.Document, error) {
	var result []*model.Document
	for rows.Next() {
		d := &model.Document{}
		if err := scanDocument(rows, d); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
