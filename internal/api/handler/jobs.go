package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/vidresolve/internal/api/response"
	"github.com/kiranshivaraju/vidresolve/internal/cache"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// Enqueuer hands job ids to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ids ...uuid.UUID) error
}

// JobDetail is a job together with its normalized format rows.
type JobDetail struct {
	*models.Job
	Formats []*models.Format `json:"formats"`
}

// JobHandlers serves the intake endpoints under /api/v1/jobs.
type JobHandlers struct {
	store     store.Store
	cache     cache.Cache
	queue     Enqueuer
	statusTTL time.Duration
}

func NewJobHandlers(s store.Store, c cache.Cache, q Enqueuer, statusTTL time.Duration) *JobHandlers {
	return &JobHandlers{store: s, cache: c, queue: q, statusTTL: statusTTL}
}

// Create handles POST /api/v1/jobs. Every URL becomes one pending job; all
// jobs share request_id, which is generated when the caller omits it.
func (h *JobHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID *uuid.UUID `json:"request_id"`
		URLs      []string   `json:"urls" validate:"required,min=1,max=50,dive,video_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
		return
	}

	for i, raw := range req.URLs {
		req.URLs[i] = strings.TrimSpace(raw)
	}
	if err := validate.Struct(req); err != nil {
		response.Invalid(w, validationErrorsToMap(err))
		return
	}

	requestID := uuid.New()
	if req.RequestID != nil {
		requestID = *req.RequestID
	}

	now := time.Now().UTC()
	jobs := make([]*models.Job, len(req.URLs))
	ids := make([]uuid.UUID, len(req.URLs))
	for i, u := range req.URLs {
		jobs[i] = &models.Job{
			ID:        uuid.New(),
			RequestID: &requestID,
			URL:       u,
			Status:    models.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		ids[i] = jobs[i].ID
	}

	if err := h.store.CreateJobs(r.Context(), jobs); err != nil {
		slog.Error("create jobs failed", "request_id", requestID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to create jobs", nil)
		return
	}

	if err := h.enqueue(r.Context(), ids); err != nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeQueueUnavailable,
			"Jobs were created but could not be queued", map[string]any{
				"request_id": requestID,
				"job_ids":    ids,
			})
		return
	}

	response.Accepted(w, map[string]any{
		"request_id": requestID,
		"jobs":       jobs,
	})
}

// Get handles GET /api/v1/jobs/{jobID}. Finished jobs are served from the
// detail cache when present.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if cached, found, err := h.cache.Get(ctx, cache.JobDetailKey(id)); err == nil && found {
		response.Raw(w, http.StatusOK, cached)
		return
	}

	job, err := h.store.GetJob(ctx, id)
	if err != nil {
		writeStoreError(w, err, "Job not found")
		return
	}

	formats, err := h.store.ListFormats(ctx, id)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to load formats", nil)
		return
	}
	if formats == nil {
		formats = []*models.Format{}
	}

	detail := JobDetail{Job: job, Formats: formats}
	if job.IsTerminalSuccess() {
		h.cacheDetail(ctx, detail)
	}
	response.JSON(w, detail)
}

// Status handles GET /api/v1/jobs/{jobID}/status.
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if status, found, err := h.cache.GetJobStatus(ctx, id); err == nil && found {
		response.JSON(w, map[string]any{"id": id, "status": status})
		return
	}

	job, err := h.store.GetJob(ctx, id)
	if err != nil {
		writeStoreError(w, err, "Job not found")
		return
	}

	if err := h.cache.SetJobStatus(ctx, id, job.Status, h.statusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", id, "error", err)
	}
	response.JSON(w, map[string]any{"id": id, "status": job.Status})
}

// ListByRequest handles GET /api/v1/requests/{requestID}/jobs.
func (h *JobHandlers) ListByRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "requestID must be a UUID", nil)
		return
	}

	jobs, err := h.store.ListJobsByRequest(r.Context(), requestID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to list jobs", nil)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	response.List(w, jobs, len(jobs))
}

// Cancel handles PUT /api/v1/jobs/{jobID}/cancel. Only pending or
// processing jobs can be cancelled.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.store.UpdateJobStatus(ctx, id, models.JobStatusCancelled); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			response.Error(w, http.StatusConflict, response.CodeInvalidTransition, "Job can no longer be cancelled", nil)
			return
		}
		writeStoreError(w, err, "Job not found")
		return
	}

	h.forget(ctx, id)
	response.JSON(w, map[string]any{"id": id, "status": models.JobStatusCancelled})
}

// Retry handles POST /api/v1/jobs/retry. The body names jobs either by ids or
// by the request_id they were created under, never both. Failed jobs among
// them go back to pending and are queued again; the rest are reported as
// skipped.
func (h *JobHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs       []uuid.UUID `json:"ids" validate:"max=100"`
		RequestID *uuid.UUID  `json:"request_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		response.Invalid(w, validationErrorsToMap(err))
		return
	}
	switch {
	case len(req.IDs) > 0 && req.RequestID != nil:
		response.Invalid(w, map[string]string{"request_id": "cannot be combined with ids"})
		return
	case len(req.IDs) == 0 && req.RequestID == nil:
		response.Invalid(w, map[string]string{"ids": "ids or request_id is required"})
		return
	}
	ctx := r.Context()

	ids := req.IDs
	if req.RequestID != nil {
		jobs, err := h.store.ListJobsByRequest(ctx, *req.RequestID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to list jobs", nil)
			return
		}
		if len(jobs) == 0 {
			response.Error(w, http.StatusNotFound, response.CodeNotFound, "No jobs for request", nil)
			return
		}
		ids = make([]uuid.UUID, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
	}

	reset, err := h.store.ResetFailedJobs(ctx, ids)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Failed to reset jobs", nil)
		return
	}

	resetSet := make(map[uuid.UUID]bool, len(reset))
	for _, id := range reset {
		resetSet[id] = true
		h.forget(ctx, id)
	}
	skipped := []uuid.UUID{}
	for _, id := range ids {
		if !resetSet[id] {
			skipped = append(skipped, id)
		}
	}

	if err := h.enqueue(ctx, reset); err != nil {
		response.Error(w, http.StatusServiceUnavailable, response.CodeQueueUnavailable,
			"Jobs were reset but could not be queued", map[string]any{"job_ids": reset})
		return
	}

	response.Accepted(w, map[string]any{
		"reset":   reset,
		"skipped": skipped,
	})
}

// enqueue queues ids. When the queue rejects them the jobs are marked failed
// so they do not sit in pending forever and can be retried.
func (h *JobHandlers) enqueue(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := h.queue.Enqueue(ctx, ids...)
	if err == nil {
		return nil
	}

	slog.Error("enqueue jobs failed", "jobs", len(ids), "error", err)
	msg := fmt.Sprintf("enqueue failed: %v", err)
	for _, id := range ids {
		if markErr := h.store.MarkJobFailed(context.WithoutCancel(ctx), id, msg); markErr != nil {
			slog.Error("mark job failed after enqueue error", "job_id", id, "error", markErr)
		}
	}
	return err
}

func (h *JobHandlers) cacheDetail(ctx context.Context, detail JobDetail) {
	data, err := response.Wrap(detail)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, cache.JobDetailKey(detail.ID), data, h.statusTTL); err != nil {
		slog.Warn("cache job detail failed", "job_id", detail.ID, "error", err)
	}
}

// forget drops every cached view of a job after its status changed here.
func (h *JobHandlers) forget(ctx context.Context, id uuid.UUID) {
	if err := h.cache.Delete(ctx, cache.JobKeys(id)...); err != nil {
		slog.Warn("invalidate job cache failed", "job_id", id, "error", err)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, notFoundMsg, nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Internal error", nil)
}
