// audit.go — сервис аудита: append-only журнал решений доступа
// и lifecycle-событий.
//
// Append никогда не «глотает» ошибку: при недоступности хранилища
// вызывающий получает ErrAuditUnavailable и обязан отклонить операцию
// (fail closed). Потеря аудиторского следа обесценивает всю защиту.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
)

// SubjectSystem — субъект для автоматических lifecycle-событий.
const SubjectSystem = "system"

// Prometheus-метрики аудита.
var (
	auditRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bc_audit_records_total",
		Help: "Общее количество записей аудита по исходам",
	}, []string{"outcome"})

	auditAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_audit_append_failures_total",
		Help: "Общее количество неудачных попыток записи аудита",
	})
)

// Лимиты пагинации запросов аудита.
const (
	auditDefaultLimit = 100
	auditMaxLimit     = 1000
)

// AuditSink — приёмник событий аудита.
// Отдельный интерфейс разрывает цикл зависимостей: PermissionService
// и LifecycleService испускают события, не зная об AuditService.
type AuditSink interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
}

// AuditService — сервис журнала аудита.
type AuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewAuditService создаёт сервис аудита.
func NewAuditService(repo repository.AuditRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Append добавляет запись в журнал. Timestamp проставляется, если не задан.
// При ошибке хранилища возвращает ErrAuditUnavailable — вызывающий
// обязан отклонить объемлющую операцию.
func (s *AuditService) Append(ctx context.Context, rec *model.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := s.repo.Append(ctx, rec); err != nil {
		auditAppendFailures.Inc()
		s.logger.Error("Запись аудита не выполнена",
			slog.String("subject", rec.SubjectID),
			slog.String("document_id", rec.DocumentID),
			slog.String("action", rec.Action),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s", ErrAuditUnavailable, err.Error())
	}

	auditRecordsTotal.WithLabelValues(rec.Outcome).Inc()
	return nil
}

// Query возвращает страницу записей аудита по фильтрам,
// упорядоченную по timestamp по возрастанию.
func (s *AuditService) Query(ctx context.Context, filters model.AuditFilters, limit, offset int) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = auditDefaultLimit
	}
	if limit > auditMaxLimit {
		limit = auditMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.Query(ctx, filters, limit, offset)
}
