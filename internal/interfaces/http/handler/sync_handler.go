package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/interfaces/http/dto"
)

// JobEnqueuer is the slice of the scheduler the admin API needs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, mode syncdomain.Mode, selector syncdomain.Selector) (*syncdomain.Job, bool, error)
}

// SyncHandler exposes the job admin surface: listing, inspection, manual
// triggers and operator retries of terminally failed jobs
type SyncHandler struct {
	BaseHandler
	jobs     syncdomain.JobRepository
	enqueuer JobEnqueuer
	logger   *zap.Logger
}

// NewSyncHandler creates a sync admin handler
func NewSyncHandler(jobs syncdomain.JobRepository, enqueuer JobEnqueuer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		jobs:     jobs,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// RegisterRoutes registers sync admin routes on the given group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	jobs := rg.Group("/sync/jobs")
	{
		jobs.GET("", h.ListJobs)
		jobs.GET("/:id", h.GetJob)
		jobs.POST("", h.TriggerJob)
		jobs.POST("/:id/retry", h.RetryJob)
	}
	rg.GET("/sync/modes", h.ListModes)
}

// ListJobs returns jobs newest first, optionally filtered by mode and state
func (h *SyncHandler) ListJobs(c *gin.Context) {
	req := dto.ListJobsRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	filter := syncdomain.JobFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Mode != "" {
		mode := syncdomain.Mode(req.Mode)
		if !mode.IsValid() {
			h.BadRequest(c, "Unknown sync mode: "+req.Mode)
			return
		}
		filter.Mode = &mode
	}
	if req.State != "" {
		state := syncdomain.State(req.State)
		filter.State = &state
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("listing sync jobs failed", zap.Error(err))
		h.InternalError(c, "Failed to list sync jobs")
		return
	}

	h.SuccessWithMeta(c, dto.NewSyncJobListResponse(jobs), total, req.Page, req.PageSize)
}

// GetJob returns one job by id
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job id")
		return
	}

	job, err := h.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, syncdomain.ErrJobNotFound) {
			h.NotFound(c, "Sync job not found")
			return
		}
		h.logger.Error("loading sync job failed", zap.String("job_id", id.String()), zap.Error(err))
		h.InternalError(c, "Failed to load sync job")
		return
	}

	h.Success(c, dto.NewSyncJobResponse(job))
}

// TriggerJob enqueues a job manually. Triggers matching an already queued
// (mode, selector) pair are coalesced rather than duplicated.
func (h *SyncHandler) TriggerJob(c *gin.Context) {
	var req dto.TriggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	mode := syncdomain.Mode(req.Mode)
	if !mode.IsValid() {
		h.BadRequest(c, "Unknown sync mode: "+req.Mode)
		return
	}

	selector := syncdomain.Selector{ExternalID: req.ExternalID}
	for _, raw := range req.LocalIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid local id: "+raw)
			return
		}
		selector.LocalIDs = append(selector.LocalIDs, id)
	}

	job, created, err := h.enqueuer.Enqueue(c.Request.Context(), mode, selector)
	if err != nil {
		if errors.Is(err, syncdomain.ErrInvalidMode) {
			h.BadRequest(c, "Unknown sync mode: "+req.Mode)
			return
		}
		h.logger.Error("enqueueing sync job failed", zap.String("mode", req.Mode), zap.Error(err))
		h.InternalError(c, "Failed to enqueue sync job")
		return
	}

	if !created {
		h.Success(c, dto.TriggerJobResponse{Deduplicated: true})
		return
	}

	resp := dto.NewSyncJobResponse(job)
	h.Created(c, dto.TriggerJobResponse{Job: &resp})
}

// RetryJob returns a terminally failed job to the queue with a fresh retry
// budget
func (h *SyncHandler) RetryJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job id")
		return
	}

	ctx := c.Request.Context()
	job, err := h.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, syncdomain.ErrJobNotFound) {
			h.NotFound(c, "Sync job not found")
			return
		}
		h.logger.Error("loading sync job failed", zap.String("job_id", id.String()), zap.Error(err))
		h.InternalError(c, "Failed to load sync job")
		return
	}

	if err := job.ResetForRetry(); err != nil {
		h.UnprocessableEntity(c, dto.ErrCodeInvalidState,
			"Only failed jobs can be retried; job is "+job.State.String())
		return
	}

	if err := h.jobs.Finish(ctx, job); err != nil {
		h.logger.Error("persisting job retry failed", zap.String("job_id", id.String()), zap.Error(err))
		h.InternalError(c, "Failed to requeue sync job")
		return
	}

	h.logger.Info("sync job requeued by operator",
		zap.String("job_id", id.String()),
		zap.String("mode", job.Mode.String()))
	h.Success(c, dto.NewSyncJobResponse(job))
}

// ListModes returns every known sync mode
func (h *SyncHandler) ListModes(c *gin.Context) {
	modes := syncdomain.AllModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.String()
	}
	h.Success(c, names)
}
