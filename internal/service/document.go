// document.go — оркестрация жизненного цикла документа:
// загрузка (шифрование + blob + запись), чтение содержимого
// (решение о доступе + расшифровка), метаданные и удаление.
//
// Удаление — мягкое: документ помечается deleted, ключи шифрования
// уничтожаются в той же транзакции, blob остаётся до purge фоновым
// sweep. Владелец вправе удалить и просроченный документ —
// expired → deleted входит в машину состояний.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
	"github.com/sluggerrrr/briefcase-sub001/internal/storage/blobstore"
)

// Действия аудита, испускаемые сервисом документов.
const (
	auditActionUpload = "upload"
	auditActionDelete = "delete"
)

// Лимит размера содержимого документа.
const maxContentSize = 50 << 20 // 50 MiB

// DocumentDeleter — транзакционное удаление документа с уничтожением ключей.
// Реализуется repository.DocumentDeleter.
type DocumentDeleter interface {
	DeleteWithKeys(ctx context.Context, documentID string, deletedAt time.Time) (deleted bool, keysDestroyed int, err error)
}

// UploadInput — параметры загрузки документа.
type UploadInput struct {
	Title            string
	OriginalFilename string
	ContentType      string
	Content          []byte
	ExpiresAt        *time.Time
	ViewLimit        *int
}

// DocumentService — сервис документов.
type DocumentService struct {
	docs    repository.DocumentRepository
	deleter DocumentDeleter
	access  *AccessService
	perms   *PermissionService
	crypto  *CryptoService
	blobs   blobstore.Store
	audit   AuditSink
	logger  *slog.Logger
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(
	docs repository.DocumentRepository,
	deleter DocumentDeleter,
	access *AccessService,
	perms *PermissionService,
	crypto *CryptoService,
	blobs blobstore.Store,
	audit AuditSink,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:    docs,
		deleter: deleter,
		access:  access,
		perms:   perms,
		crypto:  crypto,
		blobs:   blobs,
		audit:   audit,
		logger:  logger.With(slog.String("component", "documents")),
	}
}

// Upload шифрует содержимое и регистрирует документ за владельцем.
func (s *DocumentService) Upload(ctx context.Context, owner Subject, input UploadInput) (*model.Document, error) {
	if err := validateUpload(input); err != nil {
		return nil, err
	}

	documentID := uuid.New().String()

	ciphertext, keyRef, err := s.crypto.Encrypt(ctx, input.Content, documentID)
	if err != nil {
		return nil, err
	}

	// Handle blob — отдельный UUID: идентификатор документа не
	// протекает в имена файлов blob store.
	blobHandle := uuid.New().String()
	if err := s.blobs.Put(blobHandle, ciphertext); err != nil {
		return nil, fmt.Errorf("ошибка сохранения содержимого: %w", err)
	}

	doc := &model.Document{
		ID:               documentID,
		OwnerID:          owner.ID,
		Title:            input.Title,
		OriginalFilename: input.OriginalFilename,
		ContentType:      input.ContentType,
		Size:             int64(len(input.Content)),
		BlobHandle:       blobHandle,
		KeyRef:           &keyRef,
		Status:           model.StatusActive,
		ExpiresAt:        input.ExpiresAt,
		ViewLimit:        input.ViewLimit,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		// Запись в БД не прошла — blob осиротел, подчищаем сразу.
		if delErr := s.blobs.Delete(blobHandle); delErr != nil {
			s.logger.Warn("Осиротевший blob не удалён",
				slog.String("blob_handle", blobHandle),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  owner.ID,
		DocumentID: documentID,
		Action:     auditActionUpload,
		Outcome:    model.OutcomeAllow,
		Detail:     fmt.Sprintf("size=%d", doc.Size),
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Документ загружен",
		slog.String("document_id", documentID),
		slog.String("owner", owner.ID),
		slog.Int64("size", doc.Size),
	)
	return doc, nil
}

func validateUpload(input UploadInput) error {
	if len(input.Content) == 0 {
		return fmt.Errorf("%w: пустое содержимое", ErrValidation)
	}
	if len(input.Content) > maxContentSize {
		return fmt.Errorf("%w: содержимое превышает %d байт", ErrValidation, maxContentSize)
	}
	if input.Title == "" {
		return fmt.Errorf("%w: заголовок обязателен", ErrValidation)
	}
	if input.ViewLimit != nil && *input.ViewLimit < 1 {
		return fmt.Errorf("%w: лимит просмотров должен быть положительным", ErrValidation)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(timeNow()) {
		return fmt.Errorf("%w: срок действия в прошлом", ErrValidation)
	}
	return nil
}

// ReadContent возвращает расшифрованное содержимое документа.
// Решение о доступе вычисляется AccessService и зачитывает просмотр;
// отрицательное решение возвращается как ошибка таксономии.
func (s *DocumentService) ReadContent(ctx context.Context, subject Subject, documentID string) (*model.Document, []byte, error) {
	decision, err := s.access.Evaluate(ctx, subject, documentID, rbac.ActionRead)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, DecisionError(decision)
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if doc.KeyRef == nil {
		// Доступ разрешён, а ключа нет — рассинхронизация состояния.
		s.logger.Error("Документ без ключа при разрешённом доступе",
			slog.String("document_id", documentID),
		)
		return nil, nil, fmt.Errorf("%w: документ %s", ErrKeyNotFound, documentID)
	}

	ciphertext, err := s.blobs.Get(doc.BlobHandle)
	if err != nil {
		s.logger.Error("Содержимое документа недоступно в blob store",
			slog.String("document_id", documentID),
			slog.String("blob_handle", doc.BlobHandle),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("ошибка чтения содержимого: %w", err)
	}

	plaintext, err := s.crypto.Decrypt(ctx, ciphertext, *doc.KeyRef)
	if err != nil {
		return nil, nil, err
	}

	return doc, plaintext, nil
}

// GetMetadata возвращает метаданные документа без зачёта просмотра.
// Доступ к метаданным: владелец, admin или держатель любой действующей
// capability. Deleted-документ не виден никому.
func (s *DocumentService) GetMetadata(ctx context.Context, subject Subject, documentID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.Status == model.StatusDeleted {
		return nil, ErrNotFound
	}

	if doc.OwnerID == subject.ID || rbac.HasAdminRole(subject.Roles) {
		return doc, nil
	}

	entries, err := s.perms.ListBySubject(ctx, subject.ID, documentID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrInsufficientCapability
	}
	return doc, nil
}

// ListByOwner возвращает документы владельца.
func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete помечает документ удалённым и уничтожает его ключи шифрования
// в одной транзакции. Разрешено владельцу, admin и держателю
// capability delete; статус expired удалению не мешает.
func (s *DocumentService) Delete(ctx context.Context, subject Subject, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if doc.Status == model.StatusDeleted {
		return ErrNotFound
	}

	allowed := doc.OwnerID == subject.ID || rbac.HasAdminRole(subject.Roles)
	if !allowed {
		held, err := s.perms.HasCapability(ctx, subject.ID, documentID, rbac.CapDelete)
		if err != nil {
			return err
		}
		if !held {
			return ErrInsufficientCapability
		}
	}

	deleted, keysDestroyed, err := s.deleter.DeleteWithKeys(ctx, documentID, timeNow())
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	if !deleted {
		// Конкурентное удаление успело раньше.
		return ErrNotFound
	}

	s.perms.InvalidateDocument(documentID)

	if err := s.audit.Append(ctx, &model.AuditRecord{
		SubjectID:  subject.ID,
		DocumentID: documentID,
		Action:     auditActionDelete,
		Outcome:    model.OutcomeAllow,
		Detail:     fmt.Sprintf("keys_destroyed=%d", keysDestroyed),
	}); err != nil {
		return err
	}

	s.logger.Info("Документ удалён",
		slog.String("document_id", documentID),
		slog.String("subject", subject.ID),
		slog.Int("keys_destroyed", keysDestroyed),
	)
	return nil
}
