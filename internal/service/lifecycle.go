// lifecycle.go — фоновый sweep жизненного цикла документов.
//
// Запуск состоит из трёх фаз, каждая работает порциями (batch):
//   1. expire  — active документы с истёкшим сроком или исчерпанным
//                лимитом переводятся в expired (CAS, событие аудита
//                только при фактическом переходе);
//   2. purge   — deleted документы старше grace-периода: blob удаляется,
//                разрешения зачищаются, запись физически стирается;
//   3. retention — записи аудита старше срока хранения удаляются порциями.
//
// Запуск идемпотентен: повторный проход по тем же данным ничего
// не меняет и не плодит событий аудита. Ошибка по одному документу
// не прерывает проход — копится в итогах запуска.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
	"github.com/sluggerrrr/briefcase-sub001/internal/storage/blobstore"
)

// Действия аудита lifecycle-фаз.
const (
	auditActionExpire = "expire"
	auditActionPurge  = "purge"
)

// Prometheus-метрики sweep.
var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bc_lifecycle_sweep_runs_total",
		Help: "Общее количество запусков lifecycle-sweep",
	}, []string{"status"})

	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_lifecycle_documents_expired_total",
		Help: "Общее количество документов, переведённых в expired",
	})

	sweepPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_lifecycle_documents_purged_total",
		Help: "Общее количество физически удалённых документов",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bc_lifecycle_sweep_duration_seconds",
		Help:    "Длительность запуска lifecycle-sweep",
		Buckets: prometheus.DefBuckets,
	})
)

// LifecycleConfig — параметры sweep.
type LifecycleConfig struct {
	// Interval — период между автоматическими запусками.
	Interval time.Duration
	// BatchSize — размер порции документов на фазу.
	BatchSize int
	// PurgeGrace — сколько документ остаётся в deleted до физической очистки.
	PurgeGrace time.Duration
	// AuditRetention — срок хранения записей аудита.
	AuditRetention time.Duration
}

// AuditPurger — retention-операция журнала аудита.
// AuditSink намеренно узкий; retention-фазе нужен отдельный интерфейс,
// реализуемый repository.AuditRepository.
type AuditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// LifecycleService — фоновый sweep жизненного цикла.
type LifecycleService struct {
	docs      repository.DocumentRepository
	perms     repository.PermissionRepository
	jobRuns   repository.JobRunRepository
	audit     AuditSink
	retention AuditPurger
	blobs     blobstore.Store
	cfg       LifecycleConfig
	logger    *slog.Logger

	// runMu сериализует запуски: автоматический и ручной sweep
	// не работают одновременно.
	runMu  sync.Mutex
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLifecycleService создаёт sweep-сервис.
func NewLifecycleService(
	docs repository.DocumentRepository,
	perms repository.PermissionRepository,
	jobRuns repository.JobRunRepository,
	audit AuditSink,
	retention AuditPurger,
	blobs blobstore.Store,
	cfg LifecycleConfig,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		docs:      docs,
		perms:     perms,
		jobRuns:   jobRuns,
		audit:     audit,
		retention: retention,
		blobs:     blobs,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "lifecycle")),
	}
}

// Start запускает периодический sweep в фоне.
func (s *LifecycleService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.loop(ctx)

	s.logger.Info("Lifecycle-sweep запущен",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("batch_size", s.cfg.BatchSize),
	)
}

// Stop останавливает периодический sweep и ждёт завершения текущего прохода.
func (s *LifecycleService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("Lifecycle-sweep остановлен")
}

func (s *LifecycleService) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Ошибка запуска lifecycle-sweep",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет один полный проход sweep и сохраняет его итоги.
// Отмена контекста проверяется между порциями; прерванный запуск
// записывается со статусом failed и частичными счётчиками.
func (s *LifecycleService) RunOnce(ctx context.Context) (*model.JobRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := timeNow()
	run := &model.JobRun{
		ID:        uuid.New().String(),
		StartedAt: started,
		Status:    model.JobStatusCompleted,
	}

	s.expirePhase(ctx, run)
	s.purgePhase(ctx, run)
	s.retentionPhase(ctx, run)

	if ctx.Err() != nil {
		run.Status = model.JobStatusFailed
		run.Errors++
		run.ErrorDetail = append(run.ErrorDetail, "запуск прерван: "+ctx.Err().Error())
	}
	run.CompletedAt = timeNow()

	sweepRunsTotal.WithLabelValues(run.Status).Inc()
	sweepDuration.Observe(run.CompletedAt.Sub(started).Seconds())

	// Итоги запуска записываются даже при отмене контекста.
	if err := s.jobRuns.Create(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("Итоги sweep не сохранены", slog.String("error", err.Error()))
		return run, err
	}

	s.logger.Info("Lifecycle-sweep завершён",
		slog.String("run_id", run.ID),
		slog.String("status", run.Status),
		slog.Int("scanned", run.DocumentsScanned),
		slog.Int("expired", run.DocumentsExpired),
		slog.Int("purged", run.DocumentsPurged),
		slog.Int("audit_purged", run.AuditPurged),
		slog.Int("errors", run.Errors),
	)
	return run, nil
}

// expirePhase переводит просроченные active документы в expired.
func (s *LifecycleService) expirePhase(ctx context.Context, run *model.JobRun) {
	for ctx.Err() == nil {
		docs, err := s.docs.ListExpirable(ctx, timeNow(), s.cfg.BatchSize)
		if err != nil {
			s.recordError(run, fmt.Errorf("выборка истекающих документов: %w", err))
			return
		}
		if len(docs) == 0 {
			return
		}
		run.DocumentsScanned += len(docs)

		progressed := 0
		for _, doc := range docs {
			transitioned, err := s.docs.MarkExpired(ctx, doc.ID)
			if err != nil {
				s.recordError(run, fmt.Errorf("перевод %s в expired: %w", doc.ID, err))
				continue
			}
			if !transitioned {
				// Конкурентный переход (ленивый expire или другой sweep).
				progressed++
				continue
			}
			progressed++
			run.DocumentsExpired++
			sweepExpiredTotal.Inc()

			if err := s.audit.Append(ctx, &model.AuditRecord{
				SubjectID:  SubjectSystem,
				DocumentID: doc.ID,
				Action:     auditActionExpire,
				Outcome:    model.OutcomeAllow,
				Detail:     expireDetail(doc),
			}); err != nil {
				// Переход уже состоялся; событие потеряно, фиксируем ошибку.
				s.recordError(run, fmt.Errorf("аудит expire %s: %w", doc.ID, err))
			}
		}

		// Порция из одних проблемных документов — выходим, не зацикливаясь.
		if progressed == 0 {
			return
		}
		if len(docs) < s.cfg.BatchSize {
			return
		}
	}
}

func expireDetail(doc *model.Document) string {
	if doc.ViewsExhausted() {
		return "reason=view_limit"
	}
	return "reason=expires_at"
}

// purgePhase физически удаляет deleted документы старше grace-периода.
func (s *LifecycleService) purgePhase(ctx context.Context, run *model.JobRun) {
	cutoff := timeNow().Add(-s.cfg.PurgeGrace)

	for ctx.Err() == nil {
		docs, err := s.docs.ListPurgeable(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			s.recordError(run, fmt.Errorf("выборка документов для очистки: %w", err))
			return
		}
		if len(docs) == 0 {
			return
		}

		progressed := 0
		for _, doc := range docs {
			if err := s.purgeOne(ctx, doc); err != nil {
				s.recordError(run, fmt.Errorf("очистка %s: %w", doc.ID, err))
				continue
			}
			progressed++
			run.DocumentsPurged++
			sweepPurgedTotal.Inc()
		}

		if progressed == 0 {
			return
		}
		if len(docs) < s.cfg.BatchSize {
			return
		}
	}
}

// purgeOne стирает один документ: blob, разрешения, запись.
// Blob первым: если запись уже стёрта, а blob остался, повторный
// проход его не найдёт — обратный порядок оставил бы сироту навсегда.
func (s *LifecycleService) purgeOne(ctx context.Context, doc *model.Document) error {
	if err := s.blobs.Delete(doc.BlobHandle); err != nil {
		return fmt.Errorf("удаление blob: %w", err)
	}
	if _, err := s.perms.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("удаление разрешений: %w", err)
	}
	if err := s.docs.Purge(ctx, doc.ID); err != nil {
		return fmt.Errorf("удаление записи: %w", err)
	}

	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  SubjectSystem,
		DocumentID: doc.ID,
		Action:     auditActionPurge,
		Outcome:    model.OutcomeAllow,
	}); err != nil {
		return err
	}
	return nil
}

// retentionPhase удаляет записи аудита старше срока хранения.
func (s *LifecycleService) retentionPhase(ctx context.Context, run *model.JobRun) {
	if s.cfg.AuditRetention <= 0 {
		return
	}
	cutoff := timeNow().Add(-s.cfg.AuditRetention)

	for ctx.Err() == nil {
		purged, err := s.retention.PurgeOlderThan(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			s.recordError(run, fmt.Errorf("очистка аудита: %w", err))
			return
		}
		run.AuditPurged += purged
		if purged < s.cfg.BatchSize {
			return
		}
	}
}

func (s *LifecycleService) recordError(run *model.JobRun, err error) {
	run.Errors++
	run.ErrorDetail = append(run.ErrorDetail, err.Error())
	s.logger.Error("Ошибка фазы sweep", slog.String("error", err.Error()))
}
