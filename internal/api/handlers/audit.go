// audit.go — обработчик чтения журнала аудита. Доступен только роли admin.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/sluggerrrr/briefcase-sub001/internal/api/errors"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
)

// auditRecordResponse — представление записи аудита в API.
type auditRecordResponse struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SubjectID  string    `json:"subject_id"`
	DocumentID string    `json:"document_id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

func toAuditRecordResponse(rec *model.AuditRecord) auditRecordResponse {
	return auditRecordResponse{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		SubjectID:  rec.SubjectID,
		DocumentID: rec.DocumentID,
		Action:     rec.Action,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		Detail:     rec.Detail,
	}
}

// QueryAudit — GET /api/v1/audit.
// Фильтры: subject_id, document_id, action, outcome, from, to (RFC3339).
func (h *APIHandler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, subject) {
		return
	}

	q := r.URL.Query()
	filters := model.AuditFilters{
		SubjectID:  q.Get("subject_id"),
		DocumentID: q.Get("document_id"),
		Action:     q.Get("action"),
		Outcome:    q.Get("outcome"),
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "from: ожидается формат RFC3339")
			return
		}
		filters.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "to: ожидается формат RFC3339")
			return
		}
		filters.To = &to
	}

	limit, offset := paginationParams(r)
	records, err := h.audit.Query(r.Context(), filters, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]auditRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toAuditRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
