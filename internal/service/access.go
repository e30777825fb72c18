// access.go — вычисление решений о доступе к документам.
//
// Порядок проверок строгий и полный:
//   1. существование (deleted и несуществующий неотличимы для вызывающего);
//   2. срок действия (просроченный документ переводится в expired лениво,
//      не дожидаясь фонового sweep);
//   3. лимит просмотров (для read);
//   4. владелец — полный доступ, но лимит просмотров действует и на него;
//   5. роль admin, затем явные разрешения.
//
// Для read зачёт просмотра — условный UPDATE в БД (ConsumeView):
// проверка лимита и инкремент атомарны, при N конкурентных чтениях
// с остатком K успешны ровно K. Каждое решение, allow и deny,
// записывается в аудит; отказ аудита фатален для самой проверки.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
)

// Prometheus-метрики решений о доступе.
var accessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bc_access_decisions_total",
	Help: "Общее количество решений о доступе",
}, []string{"action", "outcome", "reason"})

// Subject — аутентифицированный субъект запроса.
// ID и роли поступают из claims токена, движок им доверяет.
type Subject struct {
	ID    string
	Roles []string
}

// PermissionChecker — проверка наличия capability у субъекта.
// Реализуется PermissionService.
type PermissionChecker interface {
	HasCapability(ctx context.Context, subjectID, documentID string, required rbac.Capability) (bool, error)
}

// AccessService — вычислитель решений о доступе.
type AccessService struct {
	docs   repository.DocumentRepository
	perms  PermissionChecker
	audit  AuditSink
	logger *slog.Logger
}

// NewAccessService создаёт вычислитель решений.
func NewAccessService(docs repository.DocumentRepository, perms PermissionChecker, audit AuditSink, logger *slog.Logger) *AccessService {
	return &AccessService{
		docs:   docs,
		perms:  perms,
		audit:  audit,
		logger: logger.With(slog.String("component", "access")),
	}
}

// Evaluate вычисляет решение о доступе субъекта к документу.
// Для action == read положительное решение зачитывает просмотр.
// Решение (включая deny) записывается в аудит до возврата;
// при недоступности аудита возвращается ErrAuditUnavailable.
func (s *AccessService) Evaluate(ctx context.Context, subject Subject, documentID string, action rbac.Action) (model.Decision, error) {
	if !rbac.IsValidAction(string(action)) {
		return model.Decision{}, fmt.Errorf("%w: неизвестное действие %q", ErrValidation, action)
	}

	decision, err := s.decide(ctx, subject, documentID, action)
	if err != nil {
		return model.Decision{}, err
	}

	outcome := model.OutcomeDeny
	if decision.Allowed {
		outcome = model.OutcomeAllow
	}
	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  subject.ID,
		DocumentID: documentID,
		Action:     string(action),
		Outcome:    outcome,
		Reason:     decision.Reason,
	}); err != nil {
		// Fail closed: решение без аудиторского следа не выдаётся.
		return model.Decision{}, err
	}

	accessDecisionsTotal.WithLabelValues(string(action), outcome, decision.Reason).Inc()
	return decision, nil
}

func (s *AccessService) decide(ctx context.Context, subject Subject, documentID string, action rbac.Action) (model.Decision, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Deny(model.ReasonNotFound), nil
		}
		return model.Decision{}, err
	}

	// Удалённый документ неотличим от несуществующего.
	if doc.Status == model.StatusDeleted {
		return model.Deny(model.ReasonNotFound), nil
	}

	now := timeNow()
	if doc.Status == model.StatusExpired {
		return model.Deny(model.ReasonExpired), nil
	}
	if doc.IsExpired(now) {
		// Ленивый переход: документ просрочен, но sweep его ещё не тронул.
		s.lazyExpire(ctx, documentID)
		return model.Deny(model.ReasonExpired), nil
	}

	// Предварительная проверка лимита; авторитетна CAS-проверка в ConsumeView.
	if action == rbac.ActionRead && doc.ViewsExhausted() {
		return model.Deny(model.ReasonViewLimitExceeded), nil
	}

	allowed := doc.OwnerID == subject.ID || rbac.HasAdminRole(subject.Roles)
	if !allowed {
		required, ok := rbac.CapabilityFor(action)
		if !ok {
			return model.Decision{}, fmt.Errorf("%w: неизвестное действие %q", ErrValidation, action)
		}
		held, err := s.perms.HasCapability(ctx, subject.ID, documentID, required)
		if err != nil {
			return model.Decision{}, err
		}
		if !held {
			return model.Deny(model.ReasonInsufficientCapability), nil
		}
	}

	if action == rbac.ActionRead {
		return s.consumeView(ctx, documentID)
	}
	return model.Allow(), nil
}

// consumeView зачитывает просмотр через условный UPDATE.
// Неудача CAS означает конкурентное изменение состояния документа —
// причина отказа выводится повторным чтением.
func (s *AccessService) consumeView(ctx context.Context, documentID string) (model.Decision, error) {
	ok, err := s.docs.ConsumeView(ctx, documentID)
	if err != nil {
		return model.Decision{}, err
	}
	if ok {
		return model.Allow(), nil
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Deny(model.ReasonNotFound), nil
		}
		return model.Decision{}, err
	}

	switch {
	case doc.Status == model.StatusDeleted:
		return model.Deny(model.ReasonNotFound), nil
	case doc.Status == model.StatusExpired || doc.IsExpired(timeNow()):
		return model.Deny(model.ReasonExpired), nil
	default:
		return model.Deny(model.ReasonViewLimitExceeded), nil
	}
}

// lazyExpire переводит просроченный документ в expired, не дожидаясь sweep.
// Неудача не влияет на решение (документ всё равно отклонён).
func (s *AccessService) lazyExpire(ctx context.Context, documentID string) {
	transitioned, err := s.docs.MarkExpired(ctx, documentID)
	if err != nil {
		s.logger.Warn("Ленивый перевод в expired не выполнен",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
		return
	}
	if transitioned {
		s.logger.Info("Документ переведён в expired при проверке доступа",
			slog.String("document_id", documentID),
		)
	}
}

// DecisionError преобразует отрицательное решение в ошибку таксономии.
func DecisionError(d model.Decision) error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case model.ReasonNotFound:
		return ErrNotFound
	case model.ReasonExpired:
		return ErrExpired
	case model.ReasonViewLimitExceeded:
		return ErrViewLimitExceeded
	case model.ReasonInsufficientCapability:
		return ErrInsufficientCapability
	default:
		return fmt.Errorf("доступ отклонён: %s", d.Reason)
	}
}
