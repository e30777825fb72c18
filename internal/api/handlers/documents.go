// documents.go — обработчики операций над документами:
// загрузка, метаданные, содержимое, проверка доступа, удаление.
package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sluggerrrr/briefcase-sub001/internal/api/errors"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/service"
)

// Лимит тела запроса загрузки (содержимое + поля формы).
const maxUploadBytes = 64 << 20 // 64 MiB

// documentResponse — представление документа в API.
type documentResponse struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Title            string     `json:"title"`
	OriginalFilename string     `json:"original_filename"`
	ContentType      string     `json:"content_type"`
	Size             int64      `json:"size"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	ViewLimit        *int       `json:"view_limit,omitempty"`
	AccessCount      int        `json:"access_count"`
	RemainingViews   *int       `json:"remaining_views,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toDocumentResponse(d *model.Document) documentResponse {
	resp := documentResponse{
		ID:               d.ID,
		OwnerID:          d.OwnerID,
		Title:            d.Title,
		OriginalFilename: d.OriginalFilename,
		ContentType:      d.ContentType,
		Size:             d.Size,
		Status:           d.Status,
		ExpiresAt:        d.ExpiresAt,
		ViewLimit:        d.ViewLimit,
		AccessCount:      d.AccessCount,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.ViewLimit != nil {
		remaining := *d.ViewLimit - d.AccessCount
		if remaining < 0 {
			remaining = 0
		}
		resp.RemainingViews = &remaining
	}
	return resp
}

// UploadDocument — POST /api/v1/documents.
// Multipart-форма: file (содержимое), title, expires_at (RFC3339),
// view_limit (целое > 0).
func (h *APIHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения содержимого: "+err.Error())
		return
	}

	input := service.UploadInput{
		Title:            r.FormValue("title"),
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Content:          content,
	}
	if input.ContentType == "" {
		input.ContentType = "application/octet-stream"
	}

	if v := r.FormValue("expires_at"); v != "" {
		expiresAt, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "expires_at: ожидается формат RFC3339")
			return
		}
		input.ExpiresAt = &expiresAt
	}
	if v := r.FormValue("view_limit"); v != "" {
		viewLimit, err := parsePositiveInt(v)
		if err != nil {
			apierrors.ValidationError(w, "view_limit: ожидается целое число > 0")
			return
		}
		input.ViewLimit = &viewLimit
	}

	doc, err := h.documents.Upload(r.Context(), subject, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// ListDocuments — GET /api/v1/documents (документы владельца).
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r)
	docs, err := h.documents.ListByOwner(r.Context(), subject.ID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDocument — GET /api/v1/documents/{id} (метаданные, без зачёта просмотра).
func (h *APIHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	doc, err := h.documents.GetMetadata(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// GetDocumentContent — GET /api/v1/documents/{id}/content.
// Успешный ответ зачитывает просмотр.
func (h *APIHandler) GetDocumentContent(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	doc, plaintext, err := h.documents.ReadContent(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.OriginalFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(plaintext); err != nil {
		h.logger.Warn("Ошибка записи содержимого в ответ",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteDocument — DELETE /api/v1/documents/{id}.
func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), subject, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accessCheckRequest — тело POST /api/v1/documents/{id}/access.
type accessCheckRequest struct {
	Action string `json:"action"`
}

// accessCheckResponse — результат проверки доступа.
type accessCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAccess — POST /api/v1/documents/{id}/access.
// Вычисляет решение о доступе; для action=read положительное решение
// зачитывает просмотр.
func (h *APIHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req accessCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if !rbac.IsValidAction(req.Action) {
		apierrors.ValidationError(w, "Неизвестное действие: "+req.Action)
		return
	}

	decision, err := h.access.Evaluate(r.Context(), subject, chi.URLParam(r, "id"), rbac.Action(req.Action))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accessCheckResponse{
		Allowed: decision.Allowed,
		Reason:  decision.Reason,
	})
}
