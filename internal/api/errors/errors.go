// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError        = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeExpired                = "EXPIRED"
	CodeViewLimitExceeded      = "VIEW_LIMIT_EXCEEDED"
	CodeInsufficientCapability = "INSUFFICIENT_CAPABILITY"
	CodeConflict               = "CONFLICT"
	CodeDecryptionFailure      = "DECRYPTION_FAILURE"
	CodeKeyNotFound            = "KEY_NOT_FOUND"
	CodeAuditUnavailable       = "AUDIT_UNAVAILABLE"
	CodeInternalError          = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден (или удалён — эти случаи неотличимы).
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Expired — 403 срок действия документа истёк.
func Expired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeExpired, message)
}

// ViewLimitExceeded — 403 лимит просмотров исчерпан.
func ViewLimitExceeded(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeViewLimitExceeded, message)
}

// InsufficientCapability — 403 недостаточно прав.
func InsufficientCapability(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeInsufficientCapability, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// DecryptionFailure — 500 содержимое не расшифровывается.
func DecryptionFailure(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeDecryptionFailure, message)
}

// KeyNotFound — 500 ключ шифрования отсутствует при разрешённом доступе.
func KeyNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeKeyNotFound, message)
}

// AuditUnavailable — 503 аудит недоступен, операция отклонена.
func AuditUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeAuditUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
