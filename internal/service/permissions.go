// permissions.go — выдача, отзыв и проверка прав доступа к документам.
//
// Grant/Revoke синхронно инвалидируют кэш решений: после возврата
// вызова последующие проверки видят новое состояние. Выдача
// идемпотентна по тройке (subject, document, capability) — повторный
// Grant обновляет granted_by/expires_at, не создавая дубликат.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
)

// Действия аудита, испускаемые сервисом прав.
const (
	auditActionGrant  = "grant"
	auditActionRevoke = "revoke"
)

// PermissionService — сервис управления правами доступа.
type PermissionService struct {
	repo   repository.PermissionRepository
	audit  AuditSink
	cache  *DecisionCache
	logger *slog.Logger
}

// NewPermissionService создаёт сервис прав.
func NewPermissionService(repo repository.PermissionRepository, audit AuditSink, cache *DecisionCache, logger *slog.Logger) *PermissionService {
	return &PermissionService{
		repo:   repo,
		audit:  audit,
		cache:  cache,
		logger: logger.With(slog.String("component", "permissions")),
	}
}

// Grant выдаёт субъекту capability на документ.
// expiresAt == nil — бессрочное разрешение.
func (s *PermissionService) Grant(ctx context.Context, subjectID, documentID, capability, grantedBy string, expiresAt *time.Time) error {
	if subjectID == "" || documentID == "" {
		return fmt.Errorf("%w: субъект и документ обязательны", ErrValidation)
	}
	if !rbac.IsValidCapability(capability) {
		return fmt.Errorf("%w: неизвестная capability %q", ErrValidation, capability)
	}
	now := time.Now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return fmt.Errorf("%w: срок действия разрешения уже истёк", ErrValidation)
	}

	entry := &model.PermissionEntry{
		SubjectID:  subjectID,
		DocumentID: documentID,
		Capability: capability,
		GrantedBy:  grantedBy,
		GrantedAt:  now,
		ExpiresAt:  expiresAt,
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return err
	}

	s.cache.Invalidate(subjectID, documentID)

	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  grantedBy,
		DocumentID: documentID,
		Action:     auditActionGrant,
		Outcome:    model.OutcomeAllow,
		Detail:     fmt.Sprintf("capability=%s subject=%s", capability, subjectID),
	}); err != nil {
		return err
	}

	s.logger.Info("Разрешение выдано",
		slog.String("subject", subjectID),
		slog.String("document_id", documentID),
		slog.String("capability", capability),
		slog.String("granted_by", grantedBy),
	)
	return nil
}

// Revoke отзывает capability субъекта на документ.
// Отсутствующее разрешение — ErrNotFound.
func (s *PermissionService) Revoke(ctx context.Context, subjectID, documentID, capability, revokedBy string) error {
	if !rbac.IsValidCapability(capability) {
		return fmt.Errorf("%w: неизвестная capability %q", ErrValidation, capability)
	}

	existed, err := s.repo.Delete(ctx, subjectID, documentID, capability)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: разрешение не найдено", ErrNotFound)
	}

	s.cache.Invalidate(subjectID, documentID)

	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  revokedBy,
		DocumentID: documentID,
		Action:     auditActionRevoke,
		Outcome:    model.OutcomeAllow,
		Detail:     fmt.Sprintf("capability=%s subject=%s", capability, subjectID),
	}); err != nil {
		return err
	}

	s.logger.Info("Разрешение отозвано",
		slog.String("subject", subjectID),
		slog.String("document_id", documentID),
		slog.String("capability", capability),
		slog.String("revoked_by", revokedBy),
	)
	return nil
}

// ListBySubject возвращает действующие разрешения субъекта на документ.
func (s *PermissionService) ListBySubject(ctx context.Context, subjectID, documentID string) ([]*model.PermissionEntry, error) {
	return s.repo.ListBySubjectAndDocument(ctx, subjectID, documentID, time.Now().UTC())
}

// ListByDocument возвращает все разрешения на документ.
func (s *PermissionService) ListByDocument(ctx context.Context, documentID string) ([]*model.PermissionEntry, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

// HasCapability проверяет, держит ли субъект capability на документ
// (напрямую или через admin-запись на этот документ).
// Результат кэшируется с TTL; выдача и отзыв инвалидируют кэш синхронно.
func (s *PermissionService) HasCapability(ctx context.Context, subjectID, documentID string, required rbac.Capability) (bool, error) {
	if held, ok := s.cache.Get(subjectID, documentID, required); ok {
		return held, nil
	}

	entries, err := s.repo.ListBySubjectAndDocument(ctx, subjectID, documentID, time.Now().UTC())
	if err != nil {
		return false, err
	}

	held := false
	for _, e := range entries {
		if rbac.Implies(rbac.Capability(e.Capability), required) {
			held = true
			break
		}
	}

	s.cache.Set(subjectID, documentID, required, held)
	return held, nil
}

// CheckMany проверяет capability субъекта на набор документов.
// Результаты независимы: ошибка проверки одного документа трактуется
// как отказ (fail closed) и не прерывает проверку остальных.
func (s *PermissionService) CheckMany(ctx context.Context, subjectID string, documentIDs []string, required rbac.Capability) map[string]bool {
	result := make(map[string]bool, len(documentIDs))
	for _, docID := range documentIDs {
		held, err := s.HasCapability(ctx, subjectID, docID, required)
		if err != nil {
			s.logger.Warn("Проверка права не выполнена, считается отказом",
				slog.String("subject", subjectID),
				slog.String("document_id", docID),
				slog.String("error", err.Error()),
			)
			held = false
		}
		result[docID] = held
	}
	return result
}

// InvalidateDocument сбрасывает кэш всех субъектов по документу.
// Вызывается при удалении документа.
func (s *PermissionService) InvalidateDocument(documentID string) {
	s.cache.InvalidateDocument(documentID)
}
