// lifecycle.go — обработчики управления lifecycle-джобом:
// ручной запуск sweep и история запусков. Доступны только роли admin.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sluggerrrr/briefcase-sub001/internal/api/errors"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/model"
	"github.com/sluggerrrr/briefcase-sub001/internal/domain/rbac"
	"github.com/sluggerrrr/briefcase-sub001/internal/service"
)

// JobRunReader — чтение истории запусков lifecycle-джоба.
// Реализуется repository.JobRunRepository.
type JobRunReader interface {
	List(ctx context.Context, limit, offset int) ([]*model.JobRun, error)
	GetByID(ctx context.Context, runID string) (*model.JobRun, error)
}

// jobRunResponse — представление запуска sweep в API.
type jobRunResponse struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DocumentsScanned int       `json:"documents_scanned"`
	DocumentsExpired int       `json:"documents_expired"`
	DocumentsPurged  int       `json:"documents_purged"`
	AuditPurged      int       `json:"audit_purged"`
	Errors           int       `json:"errors"`
	ErrorDetail      []string  `json:"error_detail,omitempty"`
	Status           string    `json:"status"`
}

func toJobRunResponse(run *model.JobRun) jobRunResponse {
	return jobRunResponse{
		ID:               run.ID,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		DocumentsScanned: run.DocumentsScanned,
		DocumentsExpired: run.DocumentsExpired,
		DocumentsPurged:  run.DocumentsPurged,
		AuditPurged:      run.AuditPurged,
		Errors:           run.Errors,
		ErrorDetail:      run.ErrorDetail,
		Status:           run.Status,
	}
}

// requireAdmin проверяет роль admin у субъекта.
func requireAdmin(w http.ResponseWriter, subject service.Subject) bool {
	if !rbac.HasAdminRole(subject.Roles) {
		apierrors.InsufficientCapability(w, "Операция доступна только роли admin")
		return false
	}
	return true
}

// TriggerSweep — POST /api/v1/lifecycle/runs.
// Запускает один полный проход sweep синхронно и возвращает его итоги.
func (h *APIHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, subject) {
		return
	}

	run, err := h.lifecycle.RunOnce(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobRunResponse(run))
}

// ListSweepRuns — GET /api/v1/lifecycle/runs.
func (h *APIHandler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, subject) {
		return
	}

	limit, offset := paginationParams(r)
	runs, err := h.jobRuns.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]jobRunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, toJobRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetSweepRun — GET /api/v1/lifecycle/runs/{id}.
func (h *APIHandler) GetSweepRun(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrUnauthorized(w, r)
	if !ok {
		return
	}
	if !requireAdmin(w, subject) {
		return
	}

	run, err := h.jobRuns.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobRunResponse(run))
}
