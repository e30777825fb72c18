package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
)

// JobRunRepository — интерфейс доступа к таблице job_runs.
// Одна запись на один запуск lifecycle-sweep.
type JobRunRepository interface {
	// Create сохраняет результат запуска sweep.
	Create(ctx context.Context, run *model.JobRun) error
	// List возвращает последние запуски (новые первыми).
	List(ctx context.Context, limit, offset int) ([]*model.JobRun, error)
	// GetByID возвращает запуск по UUID.
	GetByID(ctx context.Context, runID string) (*model.JobRun, error)
}

// jobRunRepo — реализация JobRunRepository.
type jobRunRepo struct {
	db DBTX
}

// NewJobRunRepository создаёт репозиторий запусков lifecycle-джобов.
func NewJobRunRepository(db DBTX) JobRunRepository {
	return &jobRunRepo{db: db}
}

func (r *jobRunRepo) Create(ctx context.Context, run *model.JobRun) error {
	query := `
		INSERT INTO job_runs (id, started_at, completed_at, documents_scanned,
			documents_expired, documents_purged, audit_purged, errors, error_detail, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.StartedAt, run.CompletedAt, run.DocumentsScanned,
		run.DocumentsExpired, run.DocumentsPurged, run.AuditPurged,
		run.Errors, run.ErrorDetail, run.Status,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения запуска джоба: %w", err)
	}
	return nil
}

func (r *jobRunRepo) List(ctx context.Context, limit, offset int) ([]*model.JobRun, error) {
	query := `
		SELECT id, started_at, completed_at, documents_scanned, documents_expired,
			documents_purged, audit_purged, errors, error_detail, status
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка запусков: %w", err)
	}
	defer rows.Close()

	var result []*model.JobRun
	for rows.Next() {
		run := &model.JobRun{}
		if err := scanJobRun(rows, run); err != nil {
			return nil, fmt.Errorf("ошибка сканирования запуска джоба: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

func (r *jobRunRepo) GetByID(ctx context.Context, runID string) (*model.JobRun, error) {
	query := `
		SELECT id, started_at, completed_at, documents_scanned, documents_expired,
			documents_purged, audit_purged, errors, error_detail, status
		FROM job_runs
		WHERE id = $1`

	run := &model.JobRun{}
	err := scanJobRun(r.db.QueryRow(ctx, query, runID), run)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения запуска джоба: %w", err)
	}
	return run, nil
}

// scanJobRun сканирует одну строку job_runs в модель.
func scanJobRun(row pgx.Row, run *model.JobRun) error {
	return row.Scan(
		&run.ID, &run.StartedAt, &run.CompletedAt, &run.DocumentsScanned,
		&run.DocumentsExpired, &run.DocumentsPurged, &run.AuditPurged,
		&run.Errors, &run.ErrorDetail, &run.Status,
	)
}
