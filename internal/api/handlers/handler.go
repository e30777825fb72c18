// handler.go — базовый обработчик API и маппинг ошибок сервисного
// слоя в HTTP-ответы.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/sluggerrrr/briefcase-sub001/internal/api/errors"
	"github.com/sluggerrrr/briefcase-sub001/internal/api/middleware"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
	"github.com/sluggerrrr/briefcase-sub001/internal/service"
)

// APIHandler — основной обработчик API движка.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health    *HealthHandler
	documents *service.DocumentService
	access    *service.AccessService
	perms     *service.PermissionService
	audit     *service.AuditService
	lifecycle *service.LifecycleService
	jobRuns   JobRunReader
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	documents *service.DocumentService,
	access *service.AccessService,
	perms *service.PermissionService,
	audit *service.AuditService,
	lifecycle *service.LifecycleService,
	jobRuns JobRunReader,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		documents: documents,
		access:    access,
		perms:     perms,
		audit:     audit,
		lifecycle: lifecycle,
		jobRuns:   jobRuns,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// subjectOrUnauthorized извлекает субъекта из контекста.
// При отсутствии (запрос мимо JWT middleware) пишет 401 и возвращает false.
func subjectOrUnauthorized(w http.ResponseWriter, r *http.Request) (service.Subject, bool) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Субъект не аутентифицирован")
		return service.Subject{}, false
	}
	return subject, true
}

// writeServiceError маппит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Документ не найден")
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, service.ErrExpired):
		apierrors.Expired(w, "Срок действия документа истёк")
	case errors.Is(err, service.ErrViewLimitExceeded):
		apierrors.ViewLimitExceeded(w, "Лимит просмотров документа исчерпан")
	case errors.Is(err, service.ErrInsufficientCapability):
		apierrors.InsufficientCapability(w, "Недостаточно прав для операции")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrDecryptionFailure):
		apierrors.DecryptionFailure(w, "Содержимое документа не расшифровывается")
	case errors.Is(err, service.ErrKeyNotFound):
		apierrors.KeyNotFound(w, "Ключ шифрования документа отсутствует")
	case errors.Is(err, service.ErrAuditUnavailable):
		apierrors.AuditUnavailable(w, "Аудит недоступен — операция отклонена")
	default:
		h.logger.Error("Внутренняя ошибка API", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// decodeJSON декодирует JSON-тело запроса в dst.
// Неизвестные поля считаются ошибкой валидации.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("некорректное JSON-тело запроса: " + err.Error())
	}
	return nil
}

// parsePositiveInt разбирает строку как целое > 0.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("значение должно быть > 0")
	}
	return n, nil
}

// paginationParams извлекает limit/offset из query-параметров.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
			if limit < 1 {
				limit = 1
			}
			if limit > 1000 {
				limit = 1000
			}
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
