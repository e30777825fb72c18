package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
)

// PermissionRepository — интерфейс доступа к таблице permission_entries.
// Хранит только явные ACL-записи; ролевые разрешения (admin)
// раскрываются сервисным слоем и в таблицу не попадают.
type PermissionRepository interface {
	// Upsert создаёт разрешение или обновляет granted_by/granted_at/expires_at
	// существующего (subject, document, capability).
	Upsert(ctx context.Context, p *model.PermissionEntry) error
	// Delete удаляет разрешение. Возвращает true, если запись существовала.
	Delete(ctx context.Context, subjectID, documentID, capability string) (bool, error)
	// ListBySubjectAndDocument возвращает действующие на момент now
	// разрешения субъекта на документ.
	ListBySubjectAndDocument(ctx context.Context, subjectID, documentID string, now time.Time) ([]*model.PermissionEntry, error)
	// ListByDocument возвращает все разрешения на документ (включая просроченные).
	ListByDocument(ctx context.Context, documentID string) ([]*model.PermissionEntry, error)
	// DeleteByDocument удаляет все разрешения документа (при purge).
	// Возвращает количество удалённых записей.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// permissionRepo — реализация PermissionRepository.
type permissionRepo struct {
	db DBTX
}

// NewPermissionRepository создаёт репозиторий разрешений.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) Upsert(ctx context.Context, p *model.PermissionEntry) error {
	query := `
		INSERT INTO permission_entries (subject_id, document_id, capability,
			granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, document_id, capability) DO UPDATE SET
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query,
		p.SubjectID, p.DocumentID, p.Capability,
		p.GrantedBy, p.GrantedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка выдачи разрешения: %w", err)
	}
	return nil
}

func (r *permissionRepo) Delete(ctx context.Context, subjectID, documentID, capability string) (bool, error) {
	query := `
		DELETE FROM permission_entries
		WHERE subject_id = $1 AND document_id = $2 AND capability = $3`

	tag, err := r.db.Exec(ctx, query, subjectID, documentID, capability)
	if err != nil {
		return false, fmt.Errorf("ошибка отзыва разрешения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *permissionRepo) ListBySubjectAndDocument(ctx context.Context, subjectID, documentID string, now time.Time) ([]*model.PermissionEntry, error) {
	query := `
		SELECT subject_id, document_id, capability, granted_by, granted_at, expires_at
		FROM permission_entries
		WHERE subject_id = $1 AND document_id = $2
			AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY capability`

	rows, err := r.db.Query(ctx, query, subjectID, documentID, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения разрешений субъекта: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

func (r *permissionRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.PermissionEntry, error) {
	query := `
		SELECT subject_id, document_id, capability, granted_by, granted_at, expires_at
		FROM permission_entries
		WHERE document_id = $1
		ORDER BY subject_id, capability`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения разрешений документа: %w", err)
	}
	defer rows.Close()

	return collectPermissions(rows)
}

func (r *permissionRepo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM permission_entries WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления разрешений документа: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// collectPermissions сканирует строки permission_entries в модели.
func collectPermissions(rows pgx.Rows) ([]*model.PermissionEntry, error) {
	var result []*model.PermissionEntry
	for rows.Next() {
		p := &model.PermissionEntry{}
		if err := rows.Scan(
			&p.SubjectID, &p.DocumentID, &p.Capability,
			&p.GrantedBy, &p.GrantedAt, &p.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования разрешения: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
