// permissions.go — обработчики управления правами доступа к документам
// и массовой проверки прав.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sluggerrrr/briefcase-sub001/internal/api/errors"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/service"
)

// permissionResponse — представление разрешения в API.
type permissionResponse struct {
	SubjectID  string     `json:"subject_id"`
	DocumentID string     `json:"document_id"`
	Capability string     `json:"capability"`
	GrantedBy  string     `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func toPermissionResponse(e *model.PermissionEntry) permissionResponse {
	return permissionResponse{
		SubjectID:  e.SubjectID,
		DocumentID: e.DocumentID,
		Capability: e.Capability,
		GrantedBy:  e.GrantedBy,
		GrantedAt:  e.GrantedAt,
		ExpiresAt:  e.ExpiresAt,
	}
}

// grantRequest — тело POST /api/v1/documents/{id}/permissions.
type grantRequest struct {
	SubjectID  string     `json:"subject_id"`
	Capability string     `json:"capability"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// revokeRequest — тело DELETE /api/v1/documents/{id}/permissions.
type revokeRequest struct {
	SubjectID  string `json:"subject_id"`
	Capability string `json:"capability"`
}

// authorizeShare проверяет право субъекта распоряжаться разрешениями
// документа (владелец, admin или capability share).
func (h *APIHandler) authorizeShare(w http.ResponseWriter, r *http.Request, subject service.Subject, documentID string) bool {
	decision, err := h.access.Evaluate(r.Context(), subject, documentID, rbac.ActionShare)
	if err != nil {
		h.writeServiceError(w, err)
		return false
	}
	if !decision.Allowed {
		h.writeServiceError(w, service.DecisionError(decision))
		return false
	}
	return true
}

// GrantPermission — POST /api/v1/documents/{id}/permissions.
func (h *APIHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	documentID := chi.URLParam(r, "id")

	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if !h.authorizeShare(w, r, subject, documentID) {
		return
	}

	if err := h.perms.Grant(r.Context(), req.SubjectID, documentID, req.Capability, subject.ID, req.ExpiresAt); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokePermission — DELETE /api/v1/documents/{id}/permissions.
func (h *APIHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	documentID := chi.URLParam(r, "id")

	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if !h.authorizeShare(w, r, subject, documentID) {
		return
	}

	if err := h.perms.Revoke(r.Context(), req.SubjectID, documentID, req.Capability, subject.ID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPermissions — GET /api/v1/documents/{id}/permissions.
func (h *APIHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	documentID := chi.URLParam(r, "id")

	if !h.authorizeShare(w, r, subject, documentID) {
		return
	}

	entries, err := h.perms.ListByDocument(r.Context(), documentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]permissionResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toPermissionResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// bulkCheckRequest — тело POST /api/v1/access-checks.
type bulkCheckRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Capability  string   `json:"capability"`
}

// BulkAccessCheck — POST /api/v1/access-checks.
// Проверяет capability аутентифицированного субъекта на набор документов.
// Результаты независимы; ошибка по одному документу трактуется как отказ.
func (h *APIHandler) BulkAccessCheck(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req bulkCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if len(req.DocumentIDs) == 0 {
		apierrors.ValidationError(w, "document_ids не может быть пустым")
		return
	}
	if len(req.DocumentIDs) > 1000 {
		apierrors.ValidationError(w, "document_ids: не более 1000 документов за запрос")
		return
	}
	if !rbac.IsValidCapability(req.Capability) {
		apierrors.ValidationError(w, "Неизвестная capability: "+req.Capability)
		return
	}

	results := h.perms.CheckMany(r.Context(), subject.ID, req.DocumentIDs, rbac.Capability(req.Capability))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
