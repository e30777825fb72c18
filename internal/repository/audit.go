package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
)

// AuditRepository — интерфейс доступа к таблице audit_records.
// Только append и чтение: UPDATE-пути у движка нет. PurgeOlderThan —
// единственный путь удаления, используется retention-фазой sweep.
type AuditRepository interface {
	// Append добавляет запись аудита.
	Append(ctx context.Context, rec *model.AuditRecord) error
	// Query возвращает страницу записей по фильтрам,
	// упорядоченную по timestamp по возрастанию. Перезапускаема через offset.
	Query(ctx context.Context, filters model.AuditFilters, limit, offset int) ([]*model.AuditRecord, error)
	// CountSince возвращает количество записей новее since (для идемпотентности sweep в тестах).
	CountSince(ctx context.Context, since time.Time) (int, error)
	// PurgeOlderThan удаляет записи старше cutoff (retention-политика).
	// Возвращает количество удалённых записей.
	PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	query := `
		INSERT INTO audit_records (ts, subject_id, document_id, action, outcome, reason, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		rec.Timestamp, rec.SubjectID, rec.DocumentID,
		rec.Action, rec.Outcome, rec.Reason, rec.Detail,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

// buildAuditWhere строит WHERE-условие и аргументы для фильтрации аудита.
func buildAuditWhere(filters model.AuditFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", argNum))
		args = append(args, filters.SubjectID)
		argNum++
	}
	if filters.DocumentID != "" {
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", argNum))
		args = append(args, filters.DocumentID)
		argNum++
	}
	if filters.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argNum))
		args = append(args, filters.Action)
		argNum++
	}
	if filters.Outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argNum))
		args = append(args, filters.Outcome)
		argNum++
	}
	if filters.From != nil {
		conditions = append(conditions, fmt.Sprintf("ts >= $%d", argNum))
		args = append(args, *filters.From)
		argNum++
	}
	if filters.To != nil {
		conditions = append(conditions, fmt.Sprintf("ts < $%d", argNum))
		args = append(args, *filters.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *auditRepo) Query(ctx context.Context, filters model.AuditFilters, limit, offset int) ([]*model.AuditRecord, error) {
	where, args := buildAuditWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT id, ts, subject_id, document_id, action, outcome, reason, detail
		FROM audit_records
		%s
		ORDER BY ts ASC, id ASC
		LIMIT $%d OFFSET $%d`, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса аудита: %w", err)
	}
	defer rows.Close()

	return collectAuditRecords(rows)
}

func (r *auditRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_records WHERE ts > $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}
	return count, nil
}

// PurgeOlderThan удаляет до limit записей старше cutoff.
// Удаление порциями — чтобы retention-фаза не держала долгую транзакцию.
func (r *auditRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	query := `
		DELETE FROM audit_records
		WHERE id IN (
			SELECT id FROM audit_records WHERE ts < $1 ORDER BY id LIMIT $2
		)`

	tag, err := r.db.Exec(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки старых записей аудита: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// collectAuditRecords сканирует строки audit_records в модели.
func collectAuditRecords(rows pgx.Rows) ([]*model.AuditRecord, error) {
	var result []*model.AuditRecord
	for rows.Next() {
		rec := &model.AuditRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.SubjectID, &rec.DocumentID,
			&rec.Action, &rec.Outcome, &rec.Reason, &rec.Detail,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
